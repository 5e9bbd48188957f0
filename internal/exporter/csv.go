package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sharongu/zipline/internal/config"
)

// utf8BOM lets Excel open summary files as UTF-8
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes CSV exports. Relative names are placed under the export
// directory, absolute ones are used as given.
type CSVWriter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewCSVWriter creates a CSVWriter; paths may be nil, keeping names as given
func NewCSVWriter(paths *config.Paths, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{paths: paths, logger: logger.With(slog.String("component", "csv_writer"))}
}

// ResolvePath is where an export named filename is written
func (w *CSVWriter) ResolvePath(filename string) string {
	if w.paths == nil || filepath.IsAbs(filename) {
		return filename
	}
	return w.paths.ExportPath(filename)
}

func (w *CSVWriter) create(filename string) (*os.File, error) {
	path := w.ResolvePath(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	return f, nil
}

// WriteFile writes a small table, prefixed with a UTF-8 BOM, to filename
func (w *CSVWriter) WriteFile(filename string, headers []string, records [][]string) error {
	f, err := w.create(filename)
	if err != nil {
		return err
	}
	if _, err := f.Write(utf8BOM); err != nil {
		f.Close()
		return err
	}
	if err := EncodeCSV(f, headers, records); err != nil {
		f.Close()
		return err
	}
	w.logger.Debug("wrote csv", slog.String("file", filename), slog.Int("records", len(records)))
	return f.Close()
}

// EncodeCSV writes headers, if any, and records to out
func EncodeCSV(out io.Writer, headers []string, records [][]string) error {
	cw := csv.NewWriter(out)
	if len(headers) > 0 {
		if err := cw.Write(headers); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	return nil
}

// RecordStream writes an export one record at a time
type RecordStream struct {
	file  *os.File
	csv   *csv.Writer
	count int
}

// Stream creates filename and writes its header line
func (w *CSVWriter) Stream(filename string, headers []string) (*RecordStream, error) {
	f, err := w.create(filename)
	if err != nil {
		return nil, err
	}
	s := &RecordStream{file: f, csv: csv.NewWriter(f)}
	if len(headers) > 0 {
		if err := s.csv.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}
	return s, nil
}

// WriteRecord appends one record
func (s *RecordStream) WriteRecord(record []string) error {
	if err := s.csv.Write(record); err != nil {
		return err
	}
	s.count++
	return nil
}

// Count is the number of records written, header excluded
func (s *RecordStream) Count() int { return s.count }

// Close flushes buffered records and closes the file
func (s *RecordStream) Close() error {
	s.csv.Flush()
	err := s.csv.Error()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
