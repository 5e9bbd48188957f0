package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sharongu/zipline/internal/config"
)

// InstrumentationName names the tracer and meter of this module
const InstrumentationName = "github.com/sharongu/zipline"

// OTelConfig selects which signals are exported and where
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout" or "none"
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64

	// SpanExporter, when set, replaces TraceExporter and exports synchronously
	SpanExporter sdktrace.SpanExporter
}

// OTelProviders are the tracer and meter of the process. PrometheusHTTP
// serves the registry the meter exports to.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Registry       *prom.Registry
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// OTelConfigFrom maps the telemetry section of the application config.
// Metrics need telemetry enabled as well as metrics_enabled.
func OTelConfigFrom(cfg config.TelemetryConfig) *OTelConfig {
	exporter := "none"
	if cfg.TraceStdout {
		exporter = "stdout"
	}
	return &OTelConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		TraceExporter:  exporter,
		EnableMetrics:  cfg.Enabled && cfg.MetricsEnabled,
		EnableTracing:  cfg.Enabled,
		SampleRatio:    1.0,
	}
}

// DefaultOTelConfig is OTelConfigFrom applied to the default configuration
func DefaultOTelConfig() *OTelConfig {
	return OTelConfigFrom(config.Default().Telemetry)
}

// InitializeOTel builds the providers for cfg and installs them as the otel
// globals. A disabled signal gets the global no-op tracer or a no-op meter,
// so instrumented code never checks for nil.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "telemetry"))

	hostname, _ := os.Hostname()
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		semconv.ServiceInstanceID(hostname+"-"+strconv.FormatInt(time.Now().Unix(), 10)),
	)

	p := &OTelProviders{
		Logger:   logger,
		Tracer:   otel.Tracer(InstrumentationName),
		Meter:    noop.NewMeterProvider().Meter(InstrumentationName),
		Registry: prom.NewRegistry(),
	}
	p.PrometheusHTTP = promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})

	if cfg.EnableTracing {
		tp, err := newTracerProvider(cfg, res)
		if err != nil {
			return nil, err
		}
		p.TracerProvider = tp
		p.Tracer = tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetTracerProvider(tp)
	}
	if cfg.EnableMetrics {
		exporter, err := prometheus.New(prometheus.WithRegisterer(p.Registry))
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		p.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))
		p.Meter = p.MeterProvider.Meter(InstrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetMeterProvider(p.MeterProvider)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("telemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.Bool("tracing", cfg.EnableTracing),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.Bool("metrics", cfg.EnableMetrics))
	return p, nil
}

// newTracerProvider samples at cfg.SampleRatio. With no exporter, spans are
// still created so their trace ids reach the logs.
func newTracerProvider(cfg *OTelConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	}
	switch {
	case cfg.SpanExporter != nil:
		opts = append(opts, sdktrace.WithSyncer(cfg.SpanExporter))
	case cfg.TraceExporter == "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case cfg.TraceExporter == "none", cfg.TraceExporter == "":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// Shutdown flushes pending spans and metrics
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// EstimatesMetrics are the instruments of the estimates service. Prometheus
// names get a _total or unit suffix, e.g. estimates_loads_total.
type EstimatesMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	LoadsTotal         metric.Int64Counter
	LoadDuration       metric.Float64Histogram
	ArraysBuilt        metric.Int64Counter
	AdjustmentsEmitted metric.Int64Counter

	EventsIngested metric.Int64Counter
	EventsDropped  metric.Int64Counter
	ExportsTotal   metric.Int64Counter
}

// instruments creates instruments on meter and keeps the first error
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.err = errors.Join(b.err, err)
	return c
}

func (b *instruments) seconds(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	b.err = errors.Join(b.err, err)
	return h
}

// CreateEstimatesMetrics registers the service's instruments on meter
func CreateEstimatesMetrics(meter metric.Meter) (*EstimatesMetrics, error) {
	b := &instruments{meter: meter}
	m := &EstimatesMetrics{
		HTTPRequestsTotal:   b.counter("http_requests", "HTTP requests by method, route and status"),
		HTTPRequestDuration: b.seconds("http_request_duration", "HTTP request duration"),

		LoadsTotal:         b.counter("estimates_loads", "Estimates load calls by selector and status"),
		LoadDuration:       b.seconds("estimates_load_duration", "Estimates load duration"),
		ArraysBuilt:        b.counter("estimates_arrays_built", "Adjusted arrays produced"),
		AdjustmentsEmitted: b.counter("estimates_adjustments", "Overwrite adjustments emitted across all arrays"),

		EventsIngested: b.counter("estimates_events_ingested", "Event rows read from sources"),
		EventsDropped:  b.counter("estimates_events_dropped", "Event rows dropped by validation"),
		ExportsTotal:   b.counter("estimates_exports", "Array exports by format and status"),
	}
	active, err := meter.Int64UpDownCounter("http_active_requests", metric.WithDescription("In-flight HTTP requests"))
	m.HTTPActiveRequests = active
	if err := errors.Join(b.err, err); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadObservation describes one completed load
type LoadObservation struct {
	Selector    string
	Arrays      int
	Adjustments int
	Duration    time.Duration
	Err         error
}

// RecordLoad counts a load by selector and status. Arrays and adjustments
// are only counted for successful loads. A nil m records nothing.
func RecordLoad(ctx context.Context, m *EstimatesMetrics, obs LoadObservation) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("selector", obs.Selector), statusAttr(obs.Err))
	m.LoadsTotal.Add(ctx, 1, attrs)
	m.LoadDuration.Record(ctx, obs.Duration.Seconds(), attrs)
	if obs.Err != nil {
		return
	}
	sel := metric.WithAttributes(attribute.String("selector", obs.Selector))
	m.ArraysBuilt.Add(ctx, int64(obs.Arrays), sel)
	m.AdjustmentsEmitted.Add(ctx, int64(obs.Adjustments), sel)
}

// RecordIngest counts rows read from source and rows dropped by validation
func RecordIngest(ctx context.Context, m *EstimatesMetrics, source string, rows, dropped int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.EventsIngested.Add(ctx, int64(rows), attrs)
	m.EventsDropped.Add(ctx, int64(dropped), attrs)
}

// RecordExport counts one export attempt by format and status
func RecordExport(ctx context.Context, m *EstimatesMetrics, format string, err error) {
	if m == nil {
		return
	}
	m.ExportsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format), statusAttr(err)))
}

// RecordHTTPRequest counts a served request and its duration
func RecordHTTPRequest(ctx context.Context, m *EstimatesMetrics, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

func statusAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "failure")
	}
	return attribute.String("status", "success")
}

// TraceIDFromContext returns the trace id of the active span, or ""
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// AddSpanEvent adds a named event to the active span. Values of types
// without an attribute kind are recorded with fmt.Sprint.
func AddSpanEvent(ctx context.Context, name string, attrs map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attributeOf(k, v))
	}
	span.AddEvent(name, trace.WithAttributes(kvs...))
}

func attributeOf(key string, v interface{}) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case bool:
		return attribute.Bool(key, val)
	case []string:
		return attribute.StringSlice(key, val)
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}

// RecordError marks the active span failed with err; nil is ignored
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
