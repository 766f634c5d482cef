package usagereport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/taxverify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRemoteWritePushSendsBilledSeries(t *testing.T) {
	var (
		got     prompb.WriteRequest
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(decoded))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	pusher.now = func() time.Time { return time.UnixMilli(1700000000000) }

	r := NewReporter(prometheus.NewRegistry(), pusher, zap.NewNop())
	r.RecordBilled("employer_com", 59.98)
	r.RecordBilled("employer_com", 59.98)
	r.RecordUpload("structured", false)

	require.NoError(t, r.Push(context.Background()))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))

	values := map[string]float64{}
	for _, ts := range got.Timeseries {
		var name, client string
		for _, l := range ts.Labels {
			switch l.Name {
			case "__name__":
				name = l.Value
			case "client":
				client = l.Value
			}
		}
		require.Len(t, ts.Samples, 1)
		assert.Equal(t, int64(1700000000000), ts.Samples[0].Timestamp)
		if client == "employer_com" {
			values[name] = ts.Samples[0].Value
		}
	}
	assert.Equal(t, 2.0, values["taxverify_usage_transcripts_billed_total"])
	assert.InDelta(t, 119.96, values["taxverify_usage_billed_amount_total"], 0.0001)
}

func TestRemoteWritePushReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewReporter(nil, NewRemoteWritePusher(srv.URL, ""), nil)
	r.RecordBilled("", 1)

	err := r.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPushgatewayPushUsesJobAndGrouping(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewReporter(nil, NewPushgatewayPusher(srv.URL, "taxverify", map[string]string{"environment": "test", "": "x"}), nil)
	r.RecordBilled("employer_com", 59.98)

	require.NoError(t, r.Push(context.Background()))
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/taxverify"), path)
	assert.Contains(t, path, "environment/test")
}

func TestNewPusherSelectsExporter(t *testing.T) {
	cfg := config.Config{AppName: "taxverify", Environment: "test"}
	assert.Nil(t, NewPusher(cfg, nil))

	cfg.UsageMetrics = config.UsageMetricsConfig{Enabled: true, Exporter: ExporterRemoteWrite}
	assert.Nil(t, NewPusher(cfg, nil), "endpoint required")

	cfg.UsageMetrics.Endpoint = "not a url"
	assert.Nil(t, NewPusher(cfg, nil))

	cfg.UsageMetrics.Endpoint = "http://collector:9090/api/v1/write"
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, nil))

	cfg.UsageMetrics.Exporter = ExporterPushgateway
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, nil))

	cfg.UsageMetrics.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, nil))
}

func TestNilReporterIsSafe(t *testing.T) {
	var r *Reporter
	r.RecordBilled("employer_com", 1)
	r.RecordUpload("opaque", true)
	r.RefreshRequestCount(context.Background(), nil)
	assert.NoError(t, r.Push(context.Background()))
}
