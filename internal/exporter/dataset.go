package exporter

import (
	"fmt"
	"sort"
	"time"

	"github.com/sharongu/zipline/internal/adjusted"
	"github.com/sharongu/zipline/internal/estimates"
)

// Record kinds of the long export layout
const (
	RecordBaseline  = "baseline"
	RecordOverwrite = "overwrite"
)

// Dataset is the result of one load: an adjusted array per column over
// Dates x Assets.
type Dataset struct {
	Dates  []time.Time
	Assets []string
	Arrays map[estimates.Column]*adjusted.Array
}

// Columns returns the dataset's columns ordered by quarter offset, then name
func (d Dataset) Columns() []estimates.Column {
	cols := make([]estimates.Column, 0, len(d.Arrays))
	for c := range d.Arrays {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].NumQuarters != cols[j].NumQuarters {
			return cols[i].NumQuarters < cols[j].NumQuarters
		}
		if cols[i].Name != cols[j].Name {
			return cols[i].Name < cols[j].Name
		}
		return cols[i].DType < cols[j].DType
	})
	return cols
}

// Validate checks every array has the Dates x Assets shape
func (d Dataset) Validate() error {
	for c, arr := range d.Arrays {
		if arr == nil {
			return fmt.Errorf("column %s has no array", c)
		}
		rows, cols := arr.Shape()
		if rows != len(d.Dates) || cols != len(d.Assets) {
			return fmt.Errorf("column %s is %dx%d, want %dx%d", c, rows, cols, len(d.Dates), len(d.Assets))
		}
	}
	return nil
}

// LongHeaders are the columns of the long layout
func LongHeaders() []string {
	return []string{"column", "num_quarters", "dtype", "record", "effective_date", "date", "asset", "value"}
}

// EachRecord emits the long layout: every baseline cell, then every
// overwritten cell keyed by the date it takes effect on. Overwrites apply
// to windows ending before effective_date.
func (d Dataset) EachRecord(emit func([]string) error) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for _, c := range d.Columns() {
		arr := d.Arrays[c]
		prefix := []string{c.Name, formatInt(c.NumQuarters), c.DType.String()}

		base := arr.Baseline()
		for row := range d.Dates {
			for col, asset := range d.Assets {
				record := append(append([]string(nil), prefix...),
					RecordBaseline, "", formatTime(d.Dates[row]), asset, formatCell(base, row, col))
				if err := emit(record); err != nil {
					return err
				}
			}
		}

		for _, key := range arr.AdjustmentRows() {
			for _, ow := range arr.Adjustments(key) {
				for i := 0; i <= ow.LastRow-ow.FirstRow; i++ {
					record := append(append([]string(nil), prefix...),
						RecordOverwrite, formatTime(d.Dates[key]), formatTime(d.Dates[ow.FirstRow+i]),
						d.Assets[ow.Column], formatValue(c.DType, ow.Values, i))
					if err := emit(record); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// LongRecords collects EachRecord into memory
func (d Dataset) LongRecords() ([][]string, error) {
	var out [][]string
	err := d.EachRecord(func(r []string) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// SummaryHeaders are the columns of the per-column summary
func SummaryHeaders() []string {
	return []string{"column", "num_quarters", "dtype", "dates", "assets", "adjustment_rows", "adjustments"}
}

// SummaryRecords describes each array in one row
func (d Dataset) SummaryRecords() [][]string {
	records := make([][]string, 0, len(d.Arrays))
	for _, c := range d.Columns() {
		arr := d.Arrays[c]
		records = append(records, []string{
			c.Name,
			formatInt(c.NumQuarters),
			c.DType.String(),
			formatInt(len(d.Dates)),
			formatInt(len(d.Assets)),
			formatInt(len(arr.AdjustmentRows())),
			formatInt(arr.AdjustmentCount()),
		})
	}
	return records
}
