package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/sharongu/zipline/internal/infrastructure"
)

// MetricsHandler exposes Prometheus metrics and runtime statistics
type MetricsHandler struct {
	prometheus http.Handler
	start      time.Time
}

// NewMetricsHandler creates a new metrics handler. A nil prometheus handler
// answers 404, as when metrics are disabled.
func NewMetricsHandler(prometheus http.Handler) *MetricsHandler {
	return &MetricsHandler{prometheus: prometheus, start: time.Now()}
}

// GetMetrics handles GET /metrics in the Prometheus text format
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		http.NotFound(w, r)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}

// GetRuntime handles GET /api/v1/runtime
func (h *MetricsHandler) GetRuntime(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, infrastructure.CollectRuntimeStats(h.start))
}
