package usagereport

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reporter accumulates billable usage in a private registry that is pushed
// out of band. It is separate from the /metrics registry so remote
// collectors only see accounting series.
type Reporter struct {
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	transcriptsBilled *prometheus.CounterVec
	amountBilled      *prometheus.CounterVec
	uploads           *prometheus.CounterVec
	requestsTotal     prometheus.Gauge
}

func NewReporter(registry *prometheus.Registry, pusher Pusher, log *zap.Logger) *Reporter {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reporter{
		registry: registry,
		pusher:   pusher,
		log:      log.Named("usagereport"),
		transcriptsBilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxverify_usage_transcripts_billed_total",
			Help: "Transcript years billed, by client.",
		}, []string{"client"}),
		amountBilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxverify_usage_billed_amount_total",
			Help: "Billed amount in dollars, by client.",
		}, []string{"client"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxverify_usage_uploads_total",
			Help: "Transcript uploads, by artifact kind and whether they were duplicates.",
		}, []string{"kind", "duplicate"}),
		requestsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taxverify_usage_verification_requests",
			Help: "Verification requests on record.",
		}),
	}
	registry.MustRegister(r.transcriptsBilled, r.amountBilled, r.uploads, r.requestsTotal)
	return r
}

func (r *Reporter) RecordBilled(client string, amount float64) {
	if r == nil {
		return
	}
	client = normalizeLabel(client)
	r.transcriptsBilled.WithLabelValues(client).Inc()
	if amount > 0 {
		r.amountBilled.WithLabelValues(client).Add(amount)
	}
}

func (r *Reporter) RecordUpload(kind string, duplicate bool) {
	if r == nil {
		return
	}
	dup := "false"
	if duplicate {
		dup = "true"
	}
	r.uploads.WithLabelValues(normalizeLabel(kind), dup).Inc()
}

// RefreshRequestCount reloads the verification request gauge from the store.
func (r *Reporter) RefreshRequestCount(ctx context.Context, db *gorm.DB) {
	if r == nil || db == nil {
		return
	}
	var count int64
	if err := db.WithContext(ctx).Model(&trdomain.VerificationRequest{}).Count(&count).Error; err != nil {
		r.log.Debug("count verification requests failed", zap.Error(err))
		return
	}
	r.requestsTotal.Set(float64(count))
}

func (r *Reporter) Push(ctx context.Context) error {
	if r == nil || r.pusher == nil {
		return nil
	}
	return r.pusher.Push(ctx, r.registry)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
