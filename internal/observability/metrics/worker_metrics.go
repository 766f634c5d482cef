package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WorkerReasonDeadlineExceeded     = "deadline_exceeded"
	WorkerReasonDBLockTimeout        = "db_lock_timeout"
	WorkerReasonSerializationFailure = "serialization_failure"
	WorkerReasonUniqueViolation      = "unique_violation"
	WorkerReasonDB                   = "db"
	WorkerReasonUnknown              = "unknown"
)

const (
	DeliveryOutcomeDelivered = "delivered"
	DeliveryOutcomeRetry     = "retry"
	DeliveryOutcomeFailed    = "failed"
)

// WorkerMetrics captures background worker health for the webhook outbox.
type WorkerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	runLoopLag     prometheus.Observer
	deliveries     *prometheus.CounterVec
	deliveryTime   prometheus.Observer
	backlog        prometheus.Gauge
	outcomeCounter map[string]prometheus.Counter
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Worker returns the singleton worker metrics registry.
func Worker() *WorkerMetrics {
	return WorkerWithConfig(Config{})
}

// WorkerWithConfig returns the singleton worker metrics registry using config labels.
func WorkerWithConfig(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = newWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

// ResetWorkerMetricsForTest resets the worker metrics singleton for tests.
func ResetWorkerMetricsForTest() {
	workerMetricsOnce = sync.Once{}
	workerMetrics = nil
}

// NewWorkerMetricsForTest builds an isolated registry-backed instance.
func NewWorkerMetricsForTest(registerer prometheus.Registerer) *WorkerMetrics {
	return newWorkerMetrics(registerer, Config{ServiceName: "taxverify", Environment: "test"})
}

func newWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "taxverify"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "taxverify_worker_job_runs_total",
		Help:        "Background worker runs by job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "taxverify_worker_job_duration_seconds",
		Help:        "Background worker run latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "taxverify_worker_job_timeouts_total",
		Help:        "Background worker runs that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "taxverify_worker_job_errors_total",
		Help:        "Background worker errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "taxverify_worker_runloop_lag_seconds",
		Help:        "Worker run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "taxverify_webhook_delivery_total",
		Help:        "Webhook delivery attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	deliveryTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "taxverify_webhook_delivery_duration_seconds",
		Help:        "Webhook delivery roundtrip latency.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "taxverify_webhook_backlog",
		Help:        "Webhook deliveries waiting to be sent.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		runLoopLag,
		deliveries,
		deliveryTime,
		backlog,
	)

	outcomeCounter := map[string]prometheus.Counter{}
	for _, outcome := range []string{DeliveryOutcomeDelivered, DeliveryOutcomeRetry, DeliveryOutcomeFailed} {
		outcomeCounter[outcome] = deliveries.WithLabelValues(outcome)
	}

	return &WorkerMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobTimeouts:    jobTimeouts,
		jobErrors:      jobErrors,
		runLoopLag:     runLoopLag,
		deliveries:     deliveries,
		deliveryTime:   deliveryTime,
		backlog:        backlog,
		outcomeCounter: outcomeCounter,
	}
}

// IncJobRun increments the run counter for a worker job.
func (m *WorkerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records worker job latency in seconds.
func (m *WorkerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the worker job.
func (m *WorkerMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the worker job error counter with classification.
func (m *WorkerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyWorkerReason(err)).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *WorkerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ObserveDelivery records one webhook attempt.
func (m *WorkerMetrics) ObserveDelivery(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if counter, ok := m.outcomeCounter[outcome]; ok {
		counter.Inc()
	} else if m.deliveries != nil {
		m.deliveries.WithLabelValues(outcome).Inc()
	}
	if m.deliveryTime != nil {
		m.deliveryTime.Observe(duration.Seconds())
	}
}

// SetBacklog reports the number of pending deliveries.
func (m *WorkerMetrics) SetBacklog(count int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(count))
}

// ClassifyWorkerReason maps worker errors to low-cardinality reasons.
func ClassifyWorkerReason(err error) string {
	if err == nil {
		return WorkerReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WorkerReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return WorkerReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return WorkerReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return WorkerReasonUniqueViolation
	}
	if isDBError(err) {
		return WorkerReasonDB
	}
	return WorkerReasonUnknown
}

// IsWorkerErrorRetryable reports whether the next tick should retry the work.
func IsWorkerErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
