package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"
)

// Config configures the metric const labels.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes application-level prometheus instruments.
type Metrics struct {
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	seatReconciles    *prometheus.CounterVec
	seatDuration      prometheus.Histogram
	gatewayCalls      *prometheus.CounterVec
	invitationEvents  *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobItemsProcessed *prometheus.CounterVec

	otel *seatInstruments
}

// New registers the instruments on registerer.
func New(cfg Config, registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "seatkeeper"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seatkeeper_http_requests_total",
			Help:        "HTTP requests by method, route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "seatkeeper_http_request_duration_seconds",
			Help:        "HTTP request latency by method and route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		seatReconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seatkeeper_seat_reconciliations_total",
			Help:        "Seat reconciliations by trigger and outcome.",
			ConstLabels: constLabels,
		}, []string{"trigger", "outcome"}),
		seatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "seatkeeper_seat_reconciliation_duration_seconds",
			Help:        "Seat reconciliation latency including gateway calls.",
			Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seatkeeper_billing_gateway_calls_total",
			Help:        "Billing gateway calls by operation and result.",
			ConstLabels: constLabels,
		}, []string{"operation", "result"}),
		invitationEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seatkeeper_invitation_events_total",
			Help:        "Invitation lifecycle transitions by resulting status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seatkeeper_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seatkeeper_scheduler_job_errors_total",
			Help:        "Scheduler job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "seatkeeper_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobItemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seatkeeper_scheduler_items_processed_total",
			Help:        "Items handled by scheduler jobs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	collectors := []prometheus.Collector{
		m.httpRequests,
		m.httpDuration,
		m.seatReconciles,
		m.seatDuration,
		m.gatewayCalls,
		m.invitationEvents,
		m.jobRuns,
		m.jobErrors,
		m.jobDuration,
		m.jobItemsProcessed,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveReconciliation records one reconciliation outcome.
func (m *Metrics) ObserveReconciliation(trigger, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		trigger = "manual"
	}
	m.seatReconciles.WithLabelValues(trigger, outcome).Inc()
	m.seatDuration.Observe(elapsed.Seconds())
	m.exportReconciliation(trigger, outcome)
}

func (m *Metrics) ObserveGatewayCall(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayCalls.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveInvitation(status string) {
	if m == nil {
		return
	}
	m.invitationEvents.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveJob(job string, elapsed time.Duration, processed int, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	if processed > 0 {
		m.jobItemsProcessed.WithLabelValues(job).Add(float64(processed))
	}
	if err != nil {
		m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
	}
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ClassifyJobReason maps an error to a low-cardinality reason label.
func ClassifyJobReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return JobReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return JobReasonDBLockTimeout
		case "40001":
			return JobReasonSerializationFailure
		case "23505":
			return JobReasonUniqueViolation
		}
	}
	return JobReasonUnknown
}
