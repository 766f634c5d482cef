package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAPIRequestUsesUnknownForEmptyLabels(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())
	m.ObserveAPIRequest("employment.read", "401", "", 5*time.Millisecond)

	got := testutil.ToFloat64(m.apiRequests.WithLabelValues("employment.read", "401", "unknown"))
	if got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}

func TestObserveBilled(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())
	m.ObserveBilled("employer_com", 59.98)
	m.ObserveBilled("employer_com", 59.98)

	if got := testutil.ToFloat64(m.billed.WithLabelValues("employer_com")); got != 2 {
		t.Fatalf("expected 2 billed, got %v", got)
	}
	if got := testutil.ToFloat64(m.billedAmount.WithLabelValues("employer_com")); got < 119.95 || got > 119.97 {
		t.Fatalf("unexpected billed amount %v", got)
	}
}
