package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devrev/securegpx/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMetricsServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "track")
	m.RecordHash()

	ready, reason := false, "chain_broken"
	ms := NewMetricsServer(&MetricsServerConfig{
		Port:     9090,
		Gatherer: reg,
		Ready:    func() (bool, string) { return ready, reason },
	}, zap.NewNop())
	h := ms.Handler()

	rec := get(h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "securegpx_chain_hashes_generated_total")

	rec = get(h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = get(h, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"chain_broken"`)

	ready = true
	rec = get(h, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}
