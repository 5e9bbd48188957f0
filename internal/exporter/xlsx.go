package exporter

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/sharongu/zipline/internal/adjusted"
	"github.com/sharongu/zipline/internal/estimates"
)

// Fixed sheets of an exported workbook
const (
	SummarySheet     = "summary"
	AdjustmentsSheet = "adjustments"
)

const maxSheetName = 31

// WriteXLSX writes ds as a workbook: a summary sheet, one baseline sheet
// per column (dates down, assets across) and an adjustments sheet holding
// every overwritten cell.
func WriteXLSX(out io.Writer, ds Dataset) error {
	f, err := buildWorkbook(ds)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveXLSX writes the workbook of ds to path
func SaveXLSX(path string, ds Dataset) error {
	f, err := buildWorkbook(ds)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// BaselineSheetName returns the sheet holding c's baseline in a workbook
// of columns. Names are unique within the workbook.
func BaselineSheetName(columns []estimates.Column, c estimates.Column) string {
	names := sheetNames(columns)
	for i, col := range columns {
		if col == c {
			return names[i]
		}
	}
	return ""
}

func buildWorkbook(ds Dataset) (*excelize.File, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	fail := func(err error) (*excelize.File, error) {
		f.Close()
		return nil, err
	}

	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		return fail(err)
	}
	columns := ds.Columns()
	err := writeSheet(f, SummarySheet, toCells(SummaryHeaders()), func(emit func([]interface{}) error) error {
		for _, c := range columns {
			arr := ds.Arrays[c]
			if err := emit([]interface{}{
				c.Name, c.NumQuarters, c.DType.String(), len(ds.Dates), len(ds.Assets),
				len(arr.AdjustmentRows()), arr.AdjustmentCount(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	header := append([]interface{}{"date"}, toCells(ds.Assets)...)
	for i, name := range sheetNames(columns) {
		base := ds.Arrays[columns[i]].Baseline()
		if _, err := f.NewSheet(name); err != nil {
			return fail(err)
		}
		err := writeSheet(f, name, header, func(emit func([]interface{}) error) error {
			for row, date := range ds.Dates {
				values := make([]interface{}, 0, len(ds.Assets)+1)
				values = append(values, date)
				for col := range ds.Assets {
					values = append(values, matrixCellValue(base, row, col))
				}
				if err := emit(values); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fail(err)
		}
	}

	if _, err := f.NewSheet(AdjustmentsSheet); err != nil {
		return fail(err)
	}
	adjHeader := toCells([]string{"column", "num_quarters", "effective_date", "date", "asset", "value"})
	err = writeSheet(f, AdjustmentsSheet, adjHeader, func(emit func([]interface{}) error) error {
		for _, c := range columns {
			arr := ds.Arrays[c]
			for _, key := range arr.AdjustmentRows() {
				for _, ow := range arr.Adjustments(key) {
					for i := 0; i <= ow.LastRow-ow.FirstRow; i++ {
						if err := emit([]interface{}{
							c.Name, c.NumQuarters, ds.Dates[key], ds.Dates[ow.FirstRow+i],
							ds.Assets[ow.Column], cellValue(c.DType, ow.Values, i),
						}); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	f.SetActiveSheet(0)
	return f, nil
}

// writeSheet streams header and the emitted rows into sheet, freezing the
// header row.
func writeSheet(f *excelize.File, sheet string, header []interface{}, rows func(emit func([]interface{}) error) error) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet %s: %w", sheet, err)
	}
	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	next := 1
	emit := func(values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, next)
		if err != nil {
			return err
		}
		next++
		return sw.SetRow(cell, values)
	}
	if err := emit(header); err != nil {
		return err
	}
	if err := rows(emit); err != nil {
		return fmt.Errorf("failed to write sheet %s: %w", sheet, err)
	}
	return sw.Flush()
}

// sheetNames derives a valid, unique sheet name per column
func sheetNames(columns []estimates.Column) []string {
	used := map[string]bool{SummarySheet: true, AdjustmentsSheet: true}
	names := make([]string, len(columns))
	for i, c := range columns {
		base := sanitizeSheetName(fmt.Sprintf("%s_q%d", c.Name, c.NumQuarters))
		if c.DType == adjusted.Datetime {
			base = sanitizeSheetName(base + "_dt")
		}
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			suffix := fmt.Sprintf("_%d", n)
			name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
		}
		used[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

func sanitizeSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']', '\'':
			return '_'
		}
		return r
	}, name)
	return truncateRunes(name, maxSheetName)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func matrixCellValue(m *adjusted.Matrix, row, col int) interface{} {
	if m.IsMissing(row, col) {
		return nil
	}
	if m.DType == adjusted.Datetime {
		t, _ := m.Time(row, col)
		return t
	}
	return m.Float(row, col)
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
