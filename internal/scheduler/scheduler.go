// Package scheduler runs the periodic maintenance jobs: expiring stale
// invitations and repairing seat drift left by failed reconciliations.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/seatkeeper/internal/clock"
	"github.com/smallbiznis/seatkeeper/internal/config"
	invitationdomain "github.com/smallbiznis/seatkeeper/internal/invitation/domain"
	"github.com/smallbiznis/seatkeeper/internal/observability/metrics"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
	subscriptiondomain "github.com/smallbiznis/seatkeeper/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobExpireInvitations = "invitations.expire"
	JobRepairSeats       = "seats.repair"

	lockKeyPrefix = "seatkeeper:scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	Invitations invitationdomain.Service
	Seats       seatdomain.Engine
	Subs        subscriptiondomain.Repository
	Locker      Locker
	Metrics     *metrics.Metrics `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PolicyHolder
	invitations invitationdomain.Service
	seats       seatdomain.Engine
	subs        subscriptiondomain.Repository
	locker      Locker
	metrics     *metrics.Metrics
	cron        *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Policy == nil ||
		p.Invitations == nil || p.Seats == nil || p.Subs == nil || p.Locker == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		invitations: p.Invitations,
		seats:       p.Seats,
		subs:        p.Subs,
		locker:      p.Locker,
		metrics:     p.Metrics,
	}, nil
}

// Start registers the jobs on their cron schedules and starts the runner.
func (s *Scheduler) Start() error {
	policy := s.policy.Get().Scheduler
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{log: s.log.Sugar()}),
		cron.WithChain(s.jobWrappers()...),
	)

	jobs := []struct {
		name     string
		schedule string
		fn       func(ctx context.Context, run *jobRun) error
	}{
		{JobExpireInvitations, policy.ExpireInvitations, s.expireInvitations},
		{JobRepairSeats, policy.RepairSeats, s.repairSeats},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			s.log.Info("scheduler.job.disabled", zap.String("job", job.name))
			continue
		}
		if _, err := c.AddFunc(job.schedule, func() {
			_ = s.runJob(context.Background(), job.name, job.fn)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
		s.log.Info("scheduler.job.scheduled", zap.String("job", job.name), zap.String("schedule", job.schedule))
	}

	s.cron = c
	c.Start()
	return nil
}

// jobWrappers recover panicking jobs and skip a firing while the previous run
// of the same job is still in progress.
func (s *Scheduler) jobWrappers() []cron.JobWrapper {
	logger := cronLogger{log: s.log.Sugar()}
	return []cron.JobWrapper{cron.Recover(logger), cron.SkipIfStillRunning(logger)}
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpireInvitations runs the invitation expiry job once.
func (s *Scheduler) ExpireInvitations(ctx context.Context) error {
	return s.runJob(ctx, JobExpireInvitations, s.expireInvitations)
}

// RepairSeats runs the seat repair job once.
func (s *Scheduler) RepairSeats(ctx context.Context) error {
	return s.runJob(ctx, JobRepairSeats, s.repairSeats)
}

// runJob takes the job lock, bounds the run by the lock TTL and records the
// outcome. A run skipped because another replica holds the lock is not an error.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context, run *jobRun) error) error {
	ttl := s.policy.Get().Scheduler.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(parent, ttl)
	defer cancel()
	ctx = jobContext(ctx, "")

	lockKey := lockKeyPrefix + name
	token, ok, err := s.locker.TryLock(ctx, lockKey, ttl)
	if err != nil {
		s.logger(ctx).Warn("scheduler.lock.failed", zap.String("job", name), zap.Error(err))
		return err
	}
	if !ok {
		s.logger(ctx).Debug("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "locked"))
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.Background(), lockKey, token); err != nil {
			s.log.Warn("scheduler.lock.release_failed", zap.String("job", name), zap.Error(err))
		}
	}()

	run := s.beginRun(ctx, name)
	err = fn(ctx, run)
	if err != nil && run.failures == 0 {
		run.failures++
	}
	s.metrics.ObserveJob(name, time.Since(run.startedAt), run.processed, err)
	run.finish()

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		s.logger(ctx).Warn("scheduler.job.timeout", zap.String("job", name), zap.Duration("timeout", ttl))
	}
	return err
}

func (s *Scheduler) expireInvitations(ctx context.Context, run *jobRun) error {
	count, err := s.invitations.ExpireDue(ctx, s.clock.Now())
	if err != nil {
		run.fail("scheduler.invitations.expire_failed", "", err)
		return err
	}
	run.add(count)
	return nil
}

// repairSeats pages through organizations with a current subscription and
// reconciles those whose seats drift from the member count.
func (s *Scheduler) repairSeats(ctx context.Context, run *jobRun) error {
	batchSize := s.policy.Get().Scheduler.RepairBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var errs []error
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		refs, err := s.subs.ListCurrentReferences(ctx, s.db, after, batchSize)
		if err != nil {
			run.fail("scheduler.seats.list_failed", "", err)
			return errors.Join(append(errs, err)...)
		}
		for _, ref := range refs {
			if err := s.repairOrganization(ctx, run, ref); err != nil {
				errs = append(errs, err)
			}
		}
		if len(refs) < batchSize {
			break
		}
		after = refs[len(refs)-1]
	}
	return errors.Join(errs...)
}

func (s *Scheduler) repairOrganization(ctx context.Context, run *jobRun, ref string) error {
	orgID, err := snowflake.ParseString(ref)
	if err != nil || orgID == 0 {
		run.log.Warn("scheduler.seats.invalid_reference", zap.String("reference_id", ref))
		return nil
	}

	needsSync, err := s.seats.NeedsSync(ctx, orgID)
	if err != nil {
		run.fail("scheduler.seats.drift_check_failed", ref, err)
		return err
	}
	if !needsSync {
		return nil
	}

	result := s.seats.Trigger(jobContext(ctx, ref), orgID, seatdomain.ReasonRepair)
	run.add(1)
	if result.Outcome == seatdomain.OutcomeFailed {
		err := fmt.Errorf("repair seats for %s: %s", ref, result.Message)
		run.fail("scheduler.seats.repair_failed", ref, err)
		return err
	}
	run.log.Info("scheduler.seats.repaired",
		zap.String("org_id", ref),
		zap.String("outcome", string(result.Outcome)),
		zap.Int64("member_count", result.MemberCount),
	)
	return nil
}
