package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sharongu/zipline/internal/services"
	"github.com/sharongu/zipline/internal/shared/testutil"
	"github.com/sharongu/zipline/pkg/contracts"
)

func TestHealthHandler(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	data := &MockEstimatesService{}
	data.On("Status", mock.Anything).Return(services.DataStatus{}).Once()
	data.On("Status", mock.Anything).Return(services.DataStatus{Loaded: true, Kept: 4, Assets: 2})

	h := NewHealthHandler(services.NewHealthService(contracts.Build{Version: "1.0.0", GoVersion: "go1.23.0"}, t.TempDir(), data, logger), logger)
	r := chi.NewRouter()
	r.Mount("/healthz", h.Routes())
	r.Get("/api/v1/version", h.Version)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", "/healthz/", http.StatusOK, "ok"},
		{"not ready before load", "/healthz/ready", http.StatusServiceUnavailable, "not_ready"},
		{"ready after load", "/healthz/ready", http.StatusOK, "ready"},
		{"live", "/healthz/live", http.StatusOK, "alive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.wantStatus, rec.Code)

			var body services.HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Status)
			assert.Equal(t, "1.0.0", body.Version)
		})
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"go_version":"go1.23.0"`)
	assert.Contains(t, rec.Body.String(), `"uptime_seconds"`)
}

func TestMetricsHandler(t *testing.T) {
	disabled := NewMetricsHandler(nil)
	rec := httptest.NewRecorder()
	disabled.GetMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	prom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("estimates_loads_total 1\n"))
	})
	rec = httptest.NewRecorder()
	NewMetricsHandler(prom).GetMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "estimates_loads_total")

	rec = httptest.NewRecorder()
	disabled.GetRuntime(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runtime", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "goroutines")
}
