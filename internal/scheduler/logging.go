package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/seatkeeper/internal/observability/context"
	obslogger "github.com/smallbiznis/seatkeeper/internal/observability/logger"
	"github.com/smallbiznis/seatkeeper/internal/observability/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// jobRun tracks a single execution of a job. Its logger is already tagged
// with the job name and run id.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	log       *zap.Logger
	processed int
	failures  int
}

func (s *Scheduler) beginRun(ctx context.Context, job string) *jobRun {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: time.Now(),
	}
	run.log = s.logger(ctx).With(zap.String("job", job), zap.String("run_id", run.runID))
	run.log.Info("scheduler.job.start")
	return run
}

func (r *jobRun) add(n int) {
	if n > 0 {
		r.processed += n
	}
}

// fail records a failure for the run, scoped to orgID when one is known.
func (r *jobRun) fail(msg, orgID string, err error) {
	if err == nil {
		return
	}
	r.failures++
	fields := []zap.Field{
		zap.String("error_type", metrics.ClassifyJobReason(err)),
		zap.Error(err),
	}
	if orgID != "" {
		fields = append(fields, zap.String("org_id", orgID))
	}
	r.log.Error(msg, fields...)
}

func (r *jobRun) finish() {
	level := zapcore.InfoLevel
	if r.failures > 0 {
		level = zapcore.WarnLevel
	}
	if ce := r.log.Check(level, "scheduler.job.finish"); ce != nil {
		ce.Write(
			zap.Int64("duration_ms", time.Since(r.startedAt).Milliseconds()),
			zap.Int("processed_count", r.processed),
			zap.Int("error_count", r.failures),
		)
	}
}

// jobContext marks ctx as a scheduler action, optionally for one organization.
func jobContext(ctx context.Context, orgID string) context.Context {
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	if orgID != "" {
		ctx = obscontext.WithOrgID(ctx, orgID)
	}
	return ctx
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

// cronLogger routes the cron runner's own messages through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw("cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw("cron."+msg, append(keysAndValues, "error", err)...)
}
