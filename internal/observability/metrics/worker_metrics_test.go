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

func TestClassifyWorkerReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: WorkerReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("claim: %w", context.Canceled), want: WorkerReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: WorkerReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: WorkerReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: WorkerReasonUniqueViolation},
		{name: "other_pg", err: &pgconn.PgError{Code: "08006"}, want: WorkerReasonDB},
		{name: "unknown", err: errors.New("boom"), want: WorkerReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyWorkerReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveDelivery(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWorkerMetricsForTest(registry)

	m.ObserveDelivery(DeliveryOutcomeDelivered, 20*time.Millisecond)
	m.ObserveDelivery(DeliveryOutcomeRetry, 20*time.Millisecond)
	m.ObserveDelivery(DeliveryOutcomeRetry, 20*time.Millisecond)
	m.SetBacklog(4)

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues(DeliveryOutcomeRetry)); got != 2 {
		t.Fatalf("expected retry count 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.backlog); got != 4 {
		t.Fatalf("expected backlog 4, got %v", got)
	}
}

func TestIsWorkerErrorRetryable(t *testing.T) {
	if IsWorkerErrorRetryable(errors.New("bad payload")) {
		t.Fatalf("plain errors should not be retryable")
	}
	if !IsWorkerErrorRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("pg errors should be retryable")
	}
}
