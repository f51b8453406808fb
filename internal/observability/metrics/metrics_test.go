package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("repair: %w", context.DeadlineExceeded), want: JobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveReconciliation(t *testing.T) {
	m, err := New(Config{ServiceName: "seatkeeper", Environment: "test"}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.ObserveReconciliation("member.removed", "updated", 20*time.Millisecond)
	m.ObserveReconciliation("member.removed", "updated", 10*time.Millisecond)
	m.ObserveReconciliation("", "no_subscription", time.Millisecond)

	if got := testutil.ToFloat64(m.seatReconciles.WithLabelValues("member.removed", "updated")); got != 2 {
		t.Fatalf("expected 2 updated reconciliations, got %v", got)
	}
	if got := testutil.ToFloat64(m.seatReconciles.WithLabelValues("manual", "no_subscription")); got != 1 {
		t.Fatalf("expected manual trigger label, got %v", got)
	}
}

func TestObserveJobCountsErrors(t *testing.T) {
	m, err := New(Config{}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.ObserveJob("seats.repair", time.Second, 3, nil)
	m.ObserveJob("seats.repair", time.Second, 0, context.DeadlineExceeded)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("seats.repair")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobItemsProcessed.WithLabelValues("seats.repair")); got != 3 {
		t.Fatalf("expected 3 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("seats.repair", JobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 deadline error, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveReconciliation("x", "updated", time.Second)
	m.ObserveGatewayCall("retrieve_subscription", nil)
	m.ObserveInvitation("accepted")
	m.ObserveJob("x", time.Second, 1, nil)
}
