package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/sharongu/zipline/internal/services"
)

// HealthHandler serves the /healthz checks and the version endpoint
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{service: service, logger: logger.With(slog.String("handler", "health"))}
}

// Routes serves /, /ready and /live; mount it at /healthz
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, h.service.HealthCheck(r.Context()))
	})
	r.Get("/ready", h.Ready)
	r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, h.service.LivenessCheck(r.Context()))
	})
	return r
}

// Ready answers 503 with the failing checks until an event table is
// installed
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.service.ReadinessCheck(r.Context())
	if status.Status != services.StatusReady {
		h.logger.WarnContext(r.Context(), "estimates not ready", slog.Any("checks", status.Checks))
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

// Version serves GET /api/v1/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}
