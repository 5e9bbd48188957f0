package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sharongu/zipline/internal/config"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Formats lists the supported export formats
func Formats() []string { return []string{FormatCSV, FormatXLSX} }

// ContentType returns the MIME type of an export format
func ContentType(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// ArrayExporter writes loaded datasets under the export directory
type ArrayExporter struct {
	csvWriter *CSVWriter
	logger    *slog.Logger
}

// NewArrayExporter creates an exporter rooted at paths.ExportDir
func NewArrayExporter(paths *config.Paths, logger *slog.Logger) *ArrayExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArrayExporter{
		csvWriter: NewCSVWriter(paths, logger),
		logger:    logger.With(slog.String("component", "array_exporter")),
	}
}

// Export writes ds in format to filename and returns the full path
func (e *ArrayExporter) Export(ds Dataset, format, filename string) (string, error) {
	switch format {
	case FormatCSV:
		return e.ExportCSV(ds, filename)
	case FormatXLSX:
		return e.ExportXLSX(ds, filename)
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportCSV streams the long layout of ds to filename
func (e *ArrayExporter) ExportCSV(ds Dataset, filename string) (string, error) {
	sw, err := e.csvWriter.Stream(filename, LongHeaders())
	if err != nil {
		return "", err
	}
	if err := ds.EachRecord(sw.WriteRecord); err != nil {
		sw.Close()
		return "", fmt.Errorf("failed to export %s: %w", filename, err)
	}
	if err := sw.Close(); err != nil {
		return "", err
	}

	path := e.csvWriter.ResolvePath(filename)
	e.logger.Info("exported arrays",
		slog.String("format", FormatCSV),
		slog.String("path", path),
		slog.Int("records", sw.Count()),
	)
	return path, nil
}

// ExportSummary writes the one-row-per-column summary of ds to filename
func (e *ArrayExporter) ExportSummary(ds Dataset, filename string) (string, error) {
	if err := ds.Validate(); err != nil {
		return "", err
	}
	if err := e.csvWriter.WriteFile(filename, SummaryHeaders(), ds.SummaryRecords()); err != nil {
		return "", err
	}
	return e.csvWriter.ResolvePath(filename), nil
}

// ExportXLSX writes the workbook of ds to filename
func (e *ArrayExporter) ExportXLSX(ds Dataset, filename string) (string, error) {
	path := e.csvWriter.ResolvePath(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := SaveXLSX(path, ds); err != nil {
		return "", err
	}

	e.logger.Info("exported arrays",
		slog.String("format", FormatXLSX),
		slog.String("path", path),
		slog.Int("columns", len(ds.Arrays)),
	)
	return path, nil
}

// Write streams ds in format to out
func Write(out io.Writer, ds Dataset, format string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(out, ds)
	case FormatXLSX:
		return WriteXLSX(out, ds)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteCSV streams the long layout of ds to out
func WriteCSV(out io.Writer, ds Dataset) error {
	records, err := ds.LongRecords()
	if err != nil {
		return err
	}
	return EncodeCSV(out, LongHeaders(), records)
}
