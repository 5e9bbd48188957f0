package infrastructure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sharongu/zipline/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func scrape(t *testing.T, p *OTelProviders) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(nil, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelConfigFrom(t *testing.T) {
	cfg := OTelConfigFrom(config.TelemetryConfig{Enabled: true, ServiceName: "estimates", TraceStdout: true})
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.True(t, cfg.EnableTracing)
	assert.False(t, cfg.EnableMetrics)

	cfg = OTelConfigFrom(config.TelemetryConfig{MetricsEnabled: true})
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.False(t, cfg.EnableMetrics, "metrics need telemetry enabled")
}

func TestOTelDisabledUsesNoop(t *testing.T) {
	providers, err := InitializeOTel(&OTelConfig{ServiceName: "estimates"}, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)

	metrics, err := CreateEstimatesMetrics(providers.Meter)
	require.NoError(t, err)
	RecordLoad(context.Background(), metrics, LoadObservation{Selector: "next", Arrays: 1})
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestOTelUnsupportedExporter(t *testing.T) {
	_, err := InitializeOTel(&OTelConfig{EnableTracing: true, TraceExporter: "zipkin", SampleRatio: 1}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported trace exporter")
}

func TestTraceCorrelation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := DefaultOTelConfig()
	cfg.SpanExporter = exporter
	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := providers.Tracer.Start(context.Background(), "estimates.load")
	traceID := TraceIDFromContext(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)
	assert.Equal(t, traceID, GetTraceID(ctx), "span trace ids back the log trace id")

	AddSpanEvent(ctx, "quarter group loaded", map[string]interface{}{
		"num_quarters": 2,
		"columns":      []string{"estimate"},
		"ratio":        0.5,
		"ok":           true,
		"other":        time.Second,
	})
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "estimates.load", spans[0].Name)
	require.Len(t, spans[0].Events, 2, "the event plus the recorded error")
	assert.Equal(t, "quarter group loaded", spans[0].Events[0].Name)
	assert.Equal(t, "boom", spans[0].Status.Description)

	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestEstimatesMetricsExposed(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateEstimatesMetrics(providers.Meter)
	require.NoError(t, err)
	require.NoError(t, RegisterRuntimeMetrics(providers.Meter, time.Now()))

	ctx := context.Background()
	RecordLoad(ctx, metrics, LoadObservation{Selector: "previous", Arrays: 2, Adjustments: 7, Duration: 3 * time.Millisecond})
	RecordLoad(ctx, metrics, LoadObservation{Selector: "next", Err: errors.New("bad")})
	RecordIngest(ctx, metrics, "csv", 10, 2)
	RecordExport(ctx, metrics, "xlsx", nil)
	RecordHTTPRequest(ctx, metrics, http.MethodPost, "/api/v1/estimates/load", 200, time.Millisecond)

	body := scrape(t, providers)
	for _, name := range []string{
		"estimates_loads_total",
		"estimates_load_duration_seconds",
		"estimates_adjustments_total",
		"estimates_arrays_built_total",
		"estimates_events_ingested_total",
		"estimates_events_dropped_total",
		"estimates_exports_total",
		"http_requests_total",
		"process_goroutines",
	} {
		assert.Contains(t, body, name)
	}
	assert.Contains(t, body, `status="failure"`)
	assert.Contains(t, body, `selector="previous"`)

	// nil metrics are ignored
	RecordLoad(ctx, nil, LoadObservation{})
	RecordIngest(ctx, nil, "csv", 1, 0)
	RecordExport(ctx, nil, "csv", nil)
	RecordHTTPRequest(ctx, nil, "GET", "/", 200, 0)
}

func TestCollectRuntimeStats(t *testing.T) {
	stats := CollectRuntimeStats(time.Now().Add(-time.Minute))
	assert.Positive(t, stats.Goroutines)
	assert.Positive(t, stats.HeapAlloc)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 60.0)
}
