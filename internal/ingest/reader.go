package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/events"
)

// Format identifies a source file type
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Extensions lists the file extensions FormatOf accepts
var Extensions = []string{".csv", ".xlsx", ".xlsm"}

// FormatOf infers the format from the file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", apperrors.NewAppError(apperrors.ErrTypeParsing,
			fmt.Sprintf("unsupported events file %q: want .csv or .xlsx", filepath.Base(path)), nil)
	}
}

// Options controls how cells are typed
type Options struct {
	// DatetimeColumns are parsed as times in addition to timestamp and
	// event_date
	DatetimeColumns []string
	// DateLayout is tried before RFC 3339; defaults to 2006-01-02
	DateLayout string
	// SheetName selects the XLSX sheet; the first sheet otherwise
	SheetName string
	// Concurrency bounds parallel file reads; defaults to 4
	Concurrency int
}

// SourceStats describes one file that was read
type SourceStats struct {
	Path   string `json:"path"`
	Format Format `json:"format"`
	Rows   int    `json:"rows"`
}

// Reader reads event files
type Reader struct {
	opts   Options
	logger *slog.Logger
}

// NewReader returns a Reader; a nil logger means slog.Default
func NewReader(opts Options, logger *slog.Logger) *Reader {
	if opts.DateLayout == "" {
		opts.DateLayout = "2006-01-02"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{opts: opts, logger: logger.With(slog.String("component", "ingest"))}
}

// rawTable is a file's header and string cells before typing
type rawTable struct {
	source string
	format Format
	header []string
	rows   [][]string
}

// ReadFiles reads every path concurrently and returns one table holding
// their rows in path order.
func (r *Reader) ReadFiles(ctx context.Context, paths []string) (*events.Table, []SourceStats, error) {
	if len(paths) == 0 {
		return nil, nil, apperrors.NewAppValidationError("no events files configured")
	}

	raws := make([]*rawTable, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, err := r.readFile(path)
			if err != nil {
				return err
			}
			raws[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	stats := make([]SourceStats, len(raws))
	for i, raw := range raws {
		stats[i] = SourceStats{Path: raw.source, Format: raw.format, Rows: len(raw.rows)}
	}

	table, err := r.build(raws)
	if err != nil {
		return nil, nil, err
	}

	r.logger.InfoContext(ctx, "events files read",
		slog.Int("files", len(paths)),
		slog.Int("rows", table.Rows()),
		slog.Int("columns", len(table.ColumnNames())),
	)
	return table, stats, nil
}

// ReadCSV reads one CSV stream; source names it in errors
func (r *Reader) ReadCSV(in io.Reader, source string) (*events.Table, error) {
	raw, err := readCSV(in, source)
	if err != nil {
		return nil, err
	}
	return r.build([]*rawTable{raw})
}

func (r *Reader) readFile(path string) (*rawTable, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("reading events file", slog.String("path", path), slog.String("format", string(format)))

	switch format {
	case FormatXLSX:
		return readXLSX(path, r.opts.SheetName)
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("open events file %s", path), err)
		}
		defer file.Close()
		return readCSV(file, path)
	}
}

func readCSV(in io.Reader, source string) (*rawTable, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: empty file", source), nil)
	}
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: read header", source), err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: read records", source), err)
	}

	return &rawTable{source: source, format: FormatCSV, header: cleanHeader(header), rows: records}, nil
}

func readXLSX(path, sheet string) (*rawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("open events workbook %s", path), err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s: workbook has no sheets", path), nil)
		}
		sheet = sheets[0]
	}

	// raw values keep dates as serial numbers instead of display strings
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: read sheet %q", path, sheet), err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: sheet %q is empty", path, sheet), nil)
	}

	return &rawTable{source: path, format: FormatXLSX, header: cleanHeader(rows[0]), rows: rows[1:]}, nil
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}
