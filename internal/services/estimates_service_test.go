package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sharongu/zipline/internal/config"
	apperrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/estimates"
	"github.com/sharongu/zipline/internal/events/eventstest"
	"github.com/sharongu/zipline/internal/exporter"
	"github.com/sharongu/zipline/internal/infrastructure"
	"github.com/sharongu/zipline/internal/ingest"
	"github.com/sharongu/zipline/internal/shared/testutil"
)

// Q1 estimate 10 known from day 1; Q2 estimate 12 known from day 5 and
// released on day 10.
const scenarioCSV = "sid,timestamp,event_date,fiscal_year,fiscal_quarter,estimate\n" +
	"A,2024-01-01,2024-01-01,2024,1,10\n" +
	"A,2024-01-05,2024-01-10,2024,2,12\n" +
	"B,2024-01-03,,2024,1,99\n"

type serviceEnv struct {
	svc       *EstimatesService
	paths     *config.Paths
	providers *infrastructure.OTelProviders
	spans     *tracetest.InMemoryExporter
	logs      *testutil.BufferedSlogHandler
}

func newServiceEnv(t *testing.T, mutate func(*config.Config)) *serviceEnv {
	t.Helper()
	dir := t.TempDir()
	paths := &config.Paths{
		BaseDir:   dir,
		DataDir:   filepath.Join(dir, "data"),
		ExportDir: filepath.Join(dir, "exports"),
		LogsDir:   filepath.Join(dir, "logs"),
	}
	require.NoError(t, paths.EnsureDirectories())
	require.NoError(t, os.WriteFile(paths.DataFile("events.csv"), []byte(scenarioCSV), 0o644))

	cfg := config.Default()
	cfg.Data.EventsFiles = []string{"events.csv"}
	cfg.Data.Selector = "previous"
	if mutate != nil {
		mutate(cfg)
	}

	spans := tracetest.NewInMemoryExporter()
	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.SpanExporter = spans
	logger, logs := testutil.NewTestLogger(t)
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { providers.Shutdown(context.Background()) })

	metrics, err := infrastructure.CreateEstimatesMetrics(providers.Meter)
	require.NoError(t, err)

	svc, err := NewEstimatesService(cfg, paths, providers, metrics, logger)
	require.NoError(t, err)
	return &serviceEnv{svc: svc, paths: paths, providers: providers, spans: spans, logs: logs}
}

func (e *serviceEnv) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func (e *serviceEnv) spanNames() []string {
	var names []string
	for _, s := range e.spans.GetSpans() {
		names = append(names, s.Name)
	}
	return names
}

func TestEstimatesService_LoadBeforeReload(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()

	assert.False(t, env.svc.Status(ctx).Loaded)
	_, err := env.svc.Fields(ctx)
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))
	_, err = env.svc.Assets(ctx)
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))

	_, err = env.svc.Load(ctx, LoadQuery{
		Columns: []estimates.Column{estimates.FloatColumn("estimate", 1)},
		Dates:   eventstest.Days(1, 3),
		Assets:  []string{"A"},
	})
	assert.Error(t, err)
	assert.Contains(t, env.scrape(t), `estimates_loads_total{`)
}

func TestEstimatesService_ReloadAndStatus(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.svc.Reload(ctx))

	st := env.svc.Status(ctx)
	assert.True(t, st.Loaded)
	assert.Equal(t, 3, st.Rows)
	assert.Equal(t, 2, st.Kept)
	assert.Equal(t, 1, st.Dropped, "B has no event date")
	assert.Equal(t, 1, st.Assets)
	require.Len(t, st.Sources, 1)
	assert.Equal(t, env.paths.DataFile("events.csv"), st.Sources[0].Path)
	assert.Equal(t, ingest.FormatCSV, st.Sources[0].Format)

	fields, err := env.svc.Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"estimate", "event_date", "fiscal_quarter", "fiscal_year"}, fields)

	assets, err := env.svc.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, assets)

	assert.Contains(t, env.spanNames(), "estimates.reload")
	assert.True(t, env.logs.ContainsMessage("event table installed"))

	body := env.scrape(t)
	assert.Contains(t, body, `estimates_events_ingested_total{`)
	assert.Contains(t, body, `source="events.csv"`)
	assert.Contains(t, body, `estimates_events_dropped_total{`)
}

func TestEstimatesService_ConfiguredFieldMap(t *testing.T) {
	env := newServiceEnv(t, func(c *config.Config) {
		c.Data.Fields = map[string]string{"eps": "estimate"}
	})
	require.NoError(t, env.svc.Reload(context.Background()))

	fields, err := env.svc.Fields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"eps"}, fields)
}

func TestEstimatesService_ReloadErrors(t *testing.T) {
	env := newServiceEnv(t, func(c *config.Config) {
		c.Data.EventsFiles = []string{"missing.csv"}
	})
	err := env.svc.Reload(context.Background())
	assert.Equal(t, apperrors.ErrTypeStorage, apperrors.TypeOf(err))
	assert.False(t, env.svc.Status(context.Background()).Loaded)

	env = newServiceEnv(t, func(c *config.Config) {
		c.Data.Fields = map[string]string{"eps": "no_such_column"}
	})
	err = env.svc.Reload(context.Background())
	assert.Equal(t, apperrors.ErrTypeSchema, apperrors.TypeOf(err))
}

func TestEstimatesService_ReloadExpandsSources(t *testing.T) {
	for _, src := range []string{"*.csv", ".", "events.csv"} {
		t.Run(src, func(t *testing.T) {
			env := newServiceEnv(t, func(c *config.Config) {
				c.Data.EventsFiles = []string{src, "events.csv"}
			})
			require.NoError(t, env.svc.Reload(context.Background()))

			st := env.svc.Status(context.Background())
			require.Len(t, st.Sources, 1, "duplicates are read once")
			assert.Equal(t, 3, st.Rows)
		})
	}
}

func TestEstimatesService_Load(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.svc.Reload(ctx))

	column := estimates.FloatColumn("estimate", 1)
	result, err := env.svc.Load(ctx, LoadQuery{
		Columns: []estimates.Column{column},
		Dates:   eventstest.Days(1, 12),
		Assets:  []string{"A"},
	})
	require.NoError(t, err)
	assert.Equal(t, estimates.Previous, result.Selector, "the configured selector applies")

	arr := result.Arrays[column]
	require.NotNil(t, arr)
	assert.Equal(t, []int{9}, arr.AdjustmentRows())
	view, err := arr.AsOf(8)
	require.NoError(t, err)
	assert.Equal(t, 10.0, view.Float(8, 0))

	next, err := env.svc.Load(ctx, LoadQuery{
		Selector: estimates.Next,
		Columns:  []estimates.Column{column},
		Dates:    eventstest.Days(1, 3),
		Assets:   []string{"A"},
	})
	require.NoError(t, err)
	assert.Equal(t, estimates.Next, next.Selector)

	assert.Contains(t, env.spanNames(), "estimates.load")
	body := env.scrape(t)
	assert.Contains(t, body, `estimates_arrays_built_total{`)
	assert.Contains(t, body, `selector="previous"`)
	assert.Contains(t, body, `selector="next"`)
}

func TestEstimatesService_LoadInvalidQuery(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.svc.Reload(ctx))

	_, err := env.svc.Load(ctx, LoadQuery{
		Columns: []estimates.Column{estimates.FloatColumn("estimate", -1)},
		Dates:   eventstest.Days(1, 3),
		Assets:  []string{"A"},
	})
	assert.Equal(t, apperrors.ErrTypeInvalidParameter, apperrors.TypeOf(err))

	_, err = env.svc.Load(ctx, LoadQuery{
		Selector: estimates.Selector(9),
		Columns:  []estimates.Column{estimates.FloatColumn("estimate", 1)},
		Dates:    eventstest.Days(1, 3),
		Assets:   []string{"A"},
	})
	assert.Equal(t, apperrors.ErrTypeInvalidParameter, apperrors.TypeOf(err))

	assert.Contains(t, env.scrape(t), `status="error"`)
	assert.True(t, env.logs.ContainsMessage("load failed"))
}

func TestEstimatesService_Export(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.svc.Reload(ctx))

	result, err := env.svc.Load(ctx, LoadQuery{
		Columns: []estimates.Column{estimates.FloatColumn("estimate", 1)},
		Dates:   eventstest.Days(1, 12),
		Assets:  []string{"A"},
	})
	require.NoError(t, err)

	path, err := env.svc.Export(ctx, result, exporter.FormatCSV, "")
	require.NoError(t, err)
	assert.Equal(t, env.paths.ExportDir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "estimates_previous_"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "estimate,1,float64,overwrite,2024-01-10,2024-01-01,A,10")

	path, err = env.svc.Export(ctx, result, exporter.FormatXLSX, "run.xlsx")
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = env.svc.Export(ctx, result, "parquet", "run.parquet")
	assert.Equal(t, apperrors.ErrTypeStorage, apperrors.TypeOf(err))

	body := env.scrape(t)
	assert.Contains(t, body, `estimates_exports_total{`)
	assert.Contains(t, body, `format="xlsx"`)
}

func TestEstimatesService_LoadTable(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.svc.LoadTable(ctx, eventstest.Table(t, eventstest.Row{
		Sid: "Z", Timestamp: eventstest.Day(1), EventDate: eventstest.Day(2), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 1,
	}), "inline"))

	st := env.svc.Status(ctx)
	assert.True(t, st.Loaded)
	assert.Equal(t, 1, st.Kept)
	assert.Equal(t, "inline", st.Sources[0].Path)
}

func TestEstimatesService_ValidatesOncePerInstall(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.svc.Reload(ctx))
	assert.Len(t, env.logs.Messages("validated event table"), 1)

	ds, err := env.svc.snapshot()
	require.NoError(t, err)
	next, previous := ds.loaders[estimates.Next], ds.loaders[estimates.Previous]
	require.NotNil(t, next)
	require.NotNil(t, previous)
	assert.Same(t, next.Events(), previous.Events())
	assert.Equal(t, estimates.Next, next.Selector())
	assert.Equal(t, estimates.Previous, previous.Selector())

	require.NoError(t, env.svc.Reload(ctx))
	assert.Len(t, env.logs.Messages("validated event table"), 2)
}

func TestEstimatesService_ReadEvents(t *testing.T) {
	env := newServiceEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.svc.ReadEvents(ctx, strings.NewReader(scenarioCSV), "stdin"))
	st := env.svc.Status(ctx)
	assert.True(t, st.Loaded)
	assert.Equal(t, "stdin", st.Sources[0].Path)

	assets, err := env.svc.Assets(ctx)
	require.NoError(t, err)
	assert.Contains(t, assets, "A")

	err = env.svc.ReadEvents(ctx, strings.NewReader(""), "stdin")
	assert.Equal(t, apperrors.ErrTypeParsing, apperrors.TypeOf(err))
	assert.True(t, env.svc.Status(ctx).Loaded, "a failed read keeps the previous table")
}

func TestNewEstimatesService_InvalidSelector(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Selector = "sideways"
	_, err := NewEstimatesService(cfg, nil, nil, nil, nil)
	assert.Equal(t, apperrors.ErrTypeConfig, apperrors.TypeOf(err))
}
