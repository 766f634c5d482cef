package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus counters for billing and the employment API.
type Metrics struct {
	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	billed       *prometheus.CounterVec
	billedAmount *prometheus.CounterVec
	uploadSize   *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics registers and returns Prometheus metrics on the default registry.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
	})
	return metrics
}

// NewMetricsWithRegisterer registers metrics on a caller-owned registry.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxverify_employment_api_requests_total",
		Help: "Employment API requests by action, status and credential environment.",
	}, []string{"action", "status", "environment"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxverify_employment_api_duration_seconds",
		Help:    "Employment API latency per action.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	billed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxverify_transactions_billed_total",
		Help: "Billed transcript transactions by client.",
	}, []string{"client"})

	billedAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxverify_transactions_billed_amount_total",
		Help: "Billed amount by client.",
	}, []string{"client"})

	uploadSize := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxverify_transcript_upload_bytes",
		Help:    "Uploaded transcript artifact sizes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	}, []string{"kind"})

	reg.MustRegister(apiRequests, apiDuration, billed, billedAmount, uploadSize)

	return &Metrics{
		apiRequests:  apiRequests,
		apiDuration:  apiDuration,
		billed:       billed,
		billedAmount: billedAmount,
		uploadSize:   uploadSize,
	}
}

// ObserveAPIRequest records an employment API request and latency.
func (m *Metrics) ObserveAPIRequest(action, status, environment string, duration time.Duration) {
	if m == nil {
		return
	}
	actionLabel := sanitizeLabel(action)
	m.apiRequests.WithLabelValues(actionLabel, sanitizeLabel(status), sanitizeLabel(environment)).Inc()
	m.apiDuration.WithLabelValues(actionLabel).Observe(duration.Seconds())
}

// ObserveBilled records one billed transaction.
func (m *Metrics) ObserveBilled(client string, amount float64) {
	if m == nil {
		return
	}
	clientLabel := sanitizeLabel(client)
	m.billed.WithLabelValues(clientLabel).Inc()
	m.billedAmount.WithLabelValues(clientLabel).Add(amount)
}

// ObserveUpload records the size of an accepted artifact.
func (m *Metrics) ObserveUpload(kind string, size int64) {
	if m == nil || size < 0 {
		return
	}
	m.uploadSize.WithLabelValues(sanitizeLabel(kind)).Observe(float64(size))
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
