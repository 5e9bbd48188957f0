package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sharongu/zipline/internal/adjusted"
	"github.com/sharongu/zipline/internal/config"
	"github.com/sharongu/zipline/internal/estimates"
	"github.com/sharongu/zipline/internal/exporter"
	"github.com/sharongu/zipline/internal/infrastructure"
	"github.com/sharongu/zipline/internal/services"
	"github.com/sharongu/zipline/pkg/contracts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("estimates failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// options are the parsed command line flags
type options struct {
	configFile string
	baseDir    string
	events     []string
	columns    []estimates.Column
	start, end time.Time
	weekdays   bool
	assets     []string
	selector   string
	format     string
	out        string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("estimates", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configFile := fs.String("config", "", "config file (defaults to ESTIMATES_CONFIG or config.yaml)")
	baseDir := fs.String("base", "", "base directory for data, exports and logs (defaults to the executable directory)")
	events := fs.String("events", "", "comma separated CSV/XLSX events files, directories or globs; - reads CSV from stdin (defaults to data.events_files)")
	columns := fs.String("columns", "", "comma separated columns as name[:num_quarters[:dtype]], e.g. estimate:1,event_date:2:datetime")
	start := fs.String("start", "", "first simulation date, YYYY-MM-DD")
	end := fs.String("end", "", "last simulation date, YYYY-MM-DD (defaults to -start)")
	weekdays := fs.Bool("weekdays", false, "skip Saturdays and Sundays")
	assets := fs.String("assets", "", "comma separated asset ids (defaults to every asset in the events)")
	selector := fs.String("selector", "", "next or previous (defaults to data.selector)")
	format := fs.String("format", exporter.FormatCSV, "output format: csv or xlsx")
	out := fs.String("out", "-", "output file, relative to the export directory; - writes to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := &options{
		configFile: *configFile,
		baseDir:    *baseDir,
		events:     splitList(*events),
		weekdays:   *weekdays,
		assets:     splitList(*assets),
		selector:   *selector,
		format:     strings.ToLower(*format),
		out:        *out,
	}

	var err error
	if opts.columns, err = parseColumns(*columns); err != nil {
		return nil, err
	}
	if *start == "" {
		return nil, fmt.Errorf("-start is required")
	}
	if opts.start, err = time.Parse(time.DateOnly, *start); err != nil {
		return nil, fmt.Errorf("invalid -start: %w", err)
	}
	opts.end = opts.start
	if *end != "" {
		if opts.end, err = time.Parse(time.DateOnly, *end); err != nil {
			return nil, fmt.Errorf("invalid -end: %w", err)
		}
	}
	if opts.end.Before(opts.start) {
		return nil, fmt.Errorf("-end %s is before -start %s", *end, *start)
	}
	if opts.format != exporter.FormatCSV && opts.format != exporter.FormatXLSX {
		return nil, fmt.Errorf("unsupported -format %q", *format)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}
	if opts.baseDir != "" {
		cfg.Paths.BaseDir = opts.baseDir
	}
	if opts.selector != "" {
		cfg.Data.Selector = opts.selector
	}
	fromStdin := len(opts.events) == 1 && opts.events[0] == "-"
	if len(opts.events) > 0 && !fromStdin {
		cfg.Data.EventsFiles = make([]string, len(opts.events))
		for i, f := range opts.events {
			if cfg.Data.EventsFiles[i], err = filepath.Abs(f); err != nil {
				return err
			}
		}
	}
	if len(cfg.Data.EventsFiles) == 0 && !fromStdin {
		return fmt.Errorf("no events files: pass -events or set data.events_files")
	}

	// stdout may carry the export, so logs go to stderr
	logger, logFile, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger = infrastructure.WithComponent(logger, "cli")
	ctx = infrastructure.EnsureTraceID(ctx)

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}

	svc, err := services.NewEstimatesService(cfg, paths, nil, nil, logger)
	if err != nil {
		return err
	}
	if fromStdin {
		err = svc.ReadEvents(ctx, stdin, "stdin")
	} else {
		err = svc.Reload(ctx)
	}
	if err != nil {
		return err
	}

	assets := opts.assets
	if len(assets) == 0 {
		if assets, err = svc.Assets(ctx); err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "running load",
		slog.String("version", contracts.CurrentBuild().String()),
		slog.String("start", opts.start.Format(time.DateOnly)),
		slog.String("end", opts.end.Format(time.DateOnly)),
		slog.Int("columns", len(opts.columns)),
		slog.Int("assets", len(assets)))

	result, err := svc.Load(ctx, services.LoadQuery{
		Columns: opts.columns,
		Dates:   dateRange(opts.start, opts.end, opts.weekdays),
		Assets:  assets,
	})
	if err != nil {
		return err
	}

	if opts.out == "-" {
		err := exporter.Write(stdout, result.Dataset, opts.format)
		svc.RecordStreamExport(ctx, opts.format, err)
		return err
	}

	path, err := svc.Export(ctx, result, opts.format, opts.out)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, path)
	return nil
}

func loadConfig(file string) (*config.Config, error) {
	if file == "" {
		return config.Load()
	}
	return config.LoadFrom(file)
}

// parseColumns parses name[:num_quarters[:dtype]] entries; num_quarters
// defaults to 1 and dtype to float64
func parseColumns(spec string) ([]estimates.Column, error) {
	entries := splitList(spec)
	if len(entries) == 0 {
		return nil, fmt.Errorf("-columns is required")
	}

	columns := make([]estimates.Column, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("invalid column %q: want name[:num_quarters[:dtype]]", entry)
		}

		c := estimates.FloatColumn(parts[0], 1)
		if len(parts) > 1 {
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("invalid column %q: %w", entry, err)
			}
			c.NumQuarters = n
		}
		if len(parts) > 2 {
			dtype, err := adjusted.ParseDType(parts[2])
			if err != nil {
				return nil, fmt.Errorf("invalid column %q: %w", entry, err)
			}
			c.DType = dtype
		}
		columns = append(columns, c)
	}
	return columns, nil
}

// dateRange returns every day from start through end at midnight UTC
func dateRange(start, end time.Time, weekdays bool) []time.Time {
	var dates []time.Time
	for d := start.UTC(); !d.After(end.UTC()); d = d.AddDate(0, 0, 1) {
		if weekdays && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
