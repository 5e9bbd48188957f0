package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sharongu/zipline/internal/infrastructure"
)

// OTelMiddleware traces each request with otelhttp and records the
// service's HTTP metrics once chi has resolved the route.
type OTelMiddleware struct {
	providers *infrastructure.OTelProviders
	metrics   *infrastructure.EstimatesMetrics
}

// NewOTelMiddleware creates the middleware; metrics may be nil
func NewOTelMiddleware(providers *infrastructure.OTelProviders, metrics *infrastructure.EstimatesMetrics) *OTelMiddleware {
	return &OTelMiddleware{providers: providers, metrics: metrics}
}

// Handler returns the middleware handler function
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	record := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			r = r.WithContext(infrastructure.WithTraceID(ctx, span.SpanContext().TraceID().String()))
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if m.metrics != nil {
			m.metrics.HTTPActiveRequests.Add(ctx, 1)
			defer m.metrics.HTTPActiveRequests.Add(ctx, -1)
		}

		start := time.Now()
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		route := routePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(semconv.HTTPRoute(route))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		infrastructure.RecordHTTPRequest(ctx, m.metrics, r.Method, route, status, duration)
	})

	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	}
	if m.providers.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(m.providers.TracerProvider))
	}
	if m.providers.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(m.providers.MeterProvider))
	}
	return otelhttp.NewHandler(record, "http.server", opts...)
}

// routePattern returns the chi route pattern, or the raw path when the
// request did not match a route
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
