package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sharongu/zipline/internal/adjusted"
	"github.com/sharongu/zipline/internal/config"
	apperrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/estimates"
	"github.com/sharongu/zipline/internal/events"
	"github.com/sharongu/zipline/internal/exporter"
	"github.com/sharongu/zipline/internal/files"
	"github.com/sharongu/zipline/internal/infrastructure"
	"github.com/sharongu/zipline/internal/ingest"
)

// LoadQuery is one point-in-time request
type LoadQuery struct {
	// Selector defaults to the configured selector when zero
	Selector estimates.Selector
	Columns  []estimates.Column
	Dates    []time.Time
	Assets   []string
	// Mask may be nil, meaning every cell is valid
	Mask adjusted.Mask
}

// LoadResult is the dataset a query produced
type LoadResult struct {
	exporter.Dataset
	Selector estimates.Selector
	Duration time.Duration
}

// DataStatus describes the loaded event table
type DataStatus struct {
	Loaded   bool                 `json:"loaded"`
	Rows     int                  `json:"rows"`
	Kept     int                  `json:"kept"`
	Dropped  int                  `json:"dropped"`
	Assets   int                  `json:"assets"`
	Fields   []string             `json:"fields"`
	Sources  []ingest.SourceStats `json:"sources,omitempty"`
	LoadedAt time.Time            `json:"loaded_at,omitempty"`
}

// dataset is one immutable generation of loaded events
type dataset struct {
	loaders  map[estimates.Selector]*estimates.Loader
	rows     int
	sources  []ingest.SourceStats
	loadedAt time.Time
}

// EstimatesService owns the event table and answers point-in-time queries
// against it. Reload swaps the table atomically; queries in flight keep the
// generation they started with.
type EstimatesService struct {
	data     config.DataConfig
	paths    *config.Paths
	reader   *ingest.Reader
	exporter *exporter.ArrayExporter
	tracer   trace.Tracer
	metrics  *infrastructure.EstimatesMetrics
	logger   *slog.Logger

	defaultSelector estimates.Selector

	mu      sync.RWMutex
	current *dataset
}

// NewEstimatesService creates the service. providers and metrics may be nil.
func NewEstimatesService(cfg *config.Config, paths *config.Paths, providers *infrastructure.OTelProviders, metrics *infrastructure.EstimatesMetrics, logger *slog.Logger) (*EstimatesService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "estimates_service"))

	selector, err := estimates.ParseSelector(cfg.Data.Selector)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid default selector", err)
	}

	tracer := otel.Tracer(infrastructure.InstrumentationName)
	if providers != nil && providers.Tracer != nil {
		tracer = providers.Tracer
	}

	logger.Info("EstimatesService initialized",
		slog.Int("events_files", len(cfg.Data.EventsFiles)),
		slog.Int("fields", len(cfg.Data.Fields)),
		slog.String("selector", selector.String()))

	return &EstimatesService{
		data:  cfg.Data,
		paths: paths,
		reader: ingest.NewReader(ingest.Options{
			DatetimeColumns: cfg.Data.DatetimeColumns,
			DateLayout:      cfg.Data.DateLayout,
			SheetName:       cfg.Data.SheetName,
		}, logger),
		exporter:        exporter.NewArrayExporter(paths, logger),
		tracer:          tracer,
		metrics:         metrics,
		logger:          logger,
		defaultSelector: selector,
	}, nil
}

// Reload reads the configured events files and replaces the event table
func (s *EstimatesService) Reload(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "estimates.reload")
	defer span.End()

	paths, err := s.resolveFiles()
	if err != nil {
		s.fail(ctx, "failed to resolve events files", err)
		return err
	}
	span.SetAttributes(attribute.Int("files", len(paths)))

	table, sources, err := s.reader.ReadFiles(ctx, paths)
	if err != nil {
		s.fail(ctx, "failed to read events files", err)
		return err
	}
	if err := s.install(ctx, table, sources); err != nil {
		s.fail(ctx, "failed to install event table", err)
		return err
	}
	return nil
}

// LoadTable installs an already built table, e.g. one read from a request
func (s *EstimatesService) LoadTable(ctx context.Context, table *events.Table, source string) error {
	return s.install(ctx, table, []ingest.SourceStats{{Path: source, Rows: table.Rows()}})
}

// ReadEvents reads one CSV stream and installs it as the event table
func (s *EstimatesService) ReadEvents(ctx context.Context, in io.Reader, source string) error {
	table, err := s.reader.ReadCSV(in, source)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read events stream",
			slog.String("source", source),
			slog.String("error", err.Error()))
		return err
	}
	return s.LoadTable(ctx, table, source)
}

func (s *EstimatesService) install(ctx context.Context, table *events.Table, sources []ingest.SourceStats) error {
	fields := s.fieldMap(table)

	base, err := estimates.NewLoader(s.defaultSelector, table, fields, estimates.WithLogger(s.logger))
	if err != nil {
		return err
	}
	loaders := map[estimates.Selector]*estimates.Loader{s.defaultSelector: base}
	for _, sel := range []estimates.Selector{estimates.Next, estimates.Previous} {
		if sel == s.defaultSelector {
			continue
		}
		if loaders[sel], err = base.WithSelector(sel); err != nil {
			return err
		}
	}

	evs := loaders[s.defaultSelector].Events()
	for _, src := range sources {
		infrastructure.RecordIngest(ctx, s.metrics, filepath.Base(src.Path), src.Rows, 0)
	}
	infrastructure.RecordIngest(ctx, s.metrics, "validation", 0, evs.Dropped)
	infrastructure.AddSpanEvent(ctx, "events installed", map[string]interface{}{
		"rows":    table.Rows(),
		"kept":    len(evs.Rows),
		"dropped": evs.Dropped,
	})

	s.mu.Lock()
	s.current = &dataset{
		loaders:  loaders,
		rows:     table.Rows(),
		sources:  sources,
		loadedAt: time.Now().UTC(),
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "event table installed",
		slog.Int("rows", table.Rows()),
		slog.Int("kept", len(evs.Rows)),
		slog.Int("dropped", evs.Dropped),
		slog.Int("fields", fields.Len()))
	return nil
}

// fieldMap returns the configured field map. With none configured, every
// column other than sid and timestamp is served under its own name.
func (s *EstimatesService) fieldMap(table *events.Table) events.FieldMap {
	if len(s.data.Fields) > 0 {
		return events.NewFieldMap(s.data.Fields)
	}
	identity := make(map[string]string)
	for _, name := range table.ColumnNames() {
		if name == events.SidColumn || name == events.TimestampColumn {
			continue
		}
		identity[name] = name
	}
	return events.NewFieldMap(identity)
}

// resolveFiles expands the configured sources (files, directories or glob
// patterns, relative to the data directory) into events files
func (s *EstimatesService) resolveFiles() ([]string, error) {
	base := ""
	if s.paths != nil {
		base = s.paths.DataDir
	}
	found, err := files.NewDiscovery(base, ingest.Extensions...).Resolve(s.data.EventsFiles)
	if err != nil {
		return nil, err
	}
	return files.Paths(found), nil
}

func (s *EstimatesService) snapshot() (*dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, apperrors.NewNotFoundError("event table")
	}
	return s.current, nil
}

// DefaultSelector returns the configured selector
func (s *EstimatesService) DefaultSelector() estimates.Selector { return s.defaultSelector }

// Fields lists the logical fields of the loaded table
func (s *EstimatesService) Fields(ctx context.Context) ([]string, error) {
	ds, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return ds.loaders[s.defaultSelector].Fields(), nil
}

// Assets lists the distinct asset ids of the loaded table, sorted
func (s *EstimatesService) Assets(ctx context.Context) ([]string, error) {
	ds, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return ds.loaders[s.defaultSelector].Events().Assets(), nil
}

// Status describes the loaded table; Loaded is false before the first load
func (s *EstimatesService) Status(ctx context.Context) DataStatus {
	ds, err := s.snapshot()
	if err != nil {
		return DataStatus{}
	}
	loader := ds.loaders[s.defaultSelector]
	evs := loader.Events()
	return DataStatus{
		Loaded:   true,
		Rows:     ds.rows,
		Kept:     len(evs.Rows),
		Dropped:  evs.Dropped,
		Assets:   len(evs.Assets()),
		Fields:   loader.Fields(),
		Sources:  ds.sources,
		LoadedAt: ds.loadedAt,
	}
}

// Load runs q against the loaded table
func (s *EstimatesService) Load(ctx context.Context, q LoadQuery) (*LoadResult, error) {
	selector := q.Selector
	if selector == 0 {
		selector = s.defaultSelector
	}

	ctx, span := s.tracer.Start(ctx, "estimates.load", trace.WithAttributes(
		attribute.String("selector", selector.String()),
		attribute.Int("columns", len(q.Columns)),
		attribute.Int("dates", len(q.Dates)),
		attribute.Int("assets", len(q.Assets)),
	))
	defer span.End()

	start := time.Now()
	obs := infrastructure.LoadObservation{Selector: selector.String()}
	defer func() {
		obs.Duration = time.Since(start)
		infrastructure.RecordLoad(ctx, s.metrics, obs)
	}()

	ds, err := s.snapshot()
	if err != nil {
		obs.Err = err
		s.fail(ctx, "load before any event table", err)
		return nil, err
	}
	loader, ok := ds.loaders[selector]
	if !ok {
		obs.Err = apperrors.NewInvalidParameterError("selector", int(selector), "must be next or previous")
		s.fail(ctx, "unknown selector", obs.Err)
		return nil, obs.Err
	}

	arrays, err := loader.Load(ctx, q.Columns, q.Dates, q.Assets, q.Mask)
	if err != nil {
		obs.Err = err
		s.fail(ctx, "load failed", err)
		return nil, err
	}

	for _, arr := range arrays {
		obs.Adjustments += arr.AdjustmentCount()
	}
	obs.Arrays = len(arrays)
	span.SetAttributes(
		attribute.Int("arrays", obs.Arrays),
		attribute.Int("adjustments", obs.Adjustments),
	)

	s.logger.InfoContext(ctx, "estimates loaded",
		slog.String("selector", selector.String()),
		slog.Int("arrays", obs.Arrays),
		slog.Int("adjustments", obs.Adjustments),
		slog.Duration("duration", time.Since(start)))

	return &LoadResult{
		Dataset: exporter.Dataset{
			Dates:  q.Dates,
			Assets: q.Assets,
			Arrays: arrays,
		},
		Selector: selector,
		Duration: time.Since(start),
	}, nil
}

// Export writes result to the export directory and returns the file path.
// An empty filename derives one from the selector and the current time.
func (s *EstimatesService) Export(ctx context.Context, result *LoadResult, format, filename string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "estimates.export", trace.WithAttributes(attribute.String("format", format)))
	defer span.End()

	if filename == "" {
		filename = fmt.Sprintf("estimates_%s_%s.%s", result.Selector, time.Now().UTC().Format("20060102T150405"), format)
	}
	path, err := s.exporter.Export(result.Dataset, format, filename)
	infrastructure.RecordExport(ctx, s.metrics, format, err)
	if err != nil {
		s.fail(ctx, "export failed", err)
		return "", apperrors.NewStorageError(fmt.Sprintf("export %s", filename), err)
	}
	span.SetAttributes(attribute.String("path", path))
	return path, nil
}

// RecordStreamExport records an export written straight to a response
func (s *EstimatesService) RecordStreamExport(ctx context.Context, format string, err error) {
	infrastructure.RecordExport(ctx, s.metrics, format, err)
}

// fail marks the span in ctx failed and logs msg
func (s *EstimatesService) fail(ctx context.Context, msg string, err error) {
	infrastructure.RecordError(ctx, err)
	s.logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
}
