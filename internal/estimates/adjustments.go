package estimates

import (
	"github.com/sharongu/zipline/internal/adjusted"
	"github.com/sharongu/zipline/internal/events"
	"github.com/sharongu/zipline/internal/quarters"
)

// fieldSource says where a column's values come from
type fieldSource int

const (
	// sourceColumn reads the physical column from the snapshot cell
	sourceColumn fieldSource = iota
	// sourceFiscalYear and sourceFiscalQuarter report the split of the
	// quarter being shown rather than the raw event column
	sourceFiscalYear
	sourceFiscalQuarter
)

// extractor turns a snapshot cell of quarter q into one storage value
type extractor struct {
	source fieldSource
	field  int
	dtype  adjusted.DType
}

func newExtractor(physical string, field int, dtype adjusted.DType) extractor {
	source := sourceColumn
	switch physical {
	case events.FiscalYearColumn:
		source = sourceFiscalYear
	case events.FiscalQuarterColumn:
		source = sourceFiscalQuarter
	}
	return extractor{source: source, field: field, dtype: dtype}
}

func (e extractor) value(cell SnapshotCell, q quarters.Normalized) events.Value {
	switch e.source {
	case sourceFiscalYear:
		return events.Float(float64(q.Year()))
	case sourceFiscalQuarter:
		return events.Float(float64(q.Quarter()))
	default:
		return cell.Values[e.field]
	}
}

// history returns the values quarter q held for an asset on rows [0, rows)
func (e extractor) history(snap *Snapshot, asset int, q quarters.Normalized, rows int) adjusted.Values {
	out := adjusted.MissingValues(e.dtype, rows)
	for i := 0; i < rows; i++ {
		e.store(out, i, snap.Cell(i, asset, q), q)
	}
	return out
}

// store writes the cell's value into out[i]; absent cells stay missing
func (e extractor) store(out adjusted.Values, i int, cell SnapshotCell, q quarters.Normalized) {
	if !cell.Present {
		return
	}
	v := e.value(cell, q)
	if e.dtype == adjusted.Datetime {
		if ts, ok := v.Time(); ok {
			out.Times[i] = adjusted.FromTime(ts)
		}
		return
	}
	out.Floats[i] = v.Float()
}

// buildArray assembles the baseline and overwrites for one column.
//
// The baseline holds, on every row with a requested quarter, the value of
// the quarter requested on the last date as known on the last date. At every
// row r where the requested quarter differs from row r-1, an overwrite keyed
// at r replaces rows [0, r-1] with the point-in-time history of the quarter
// requested on r-1, or with the missing value when that quarter was never
// disclosed or no quarter was requested.
func buildArray(snap *Snapshot, requested [][]Requested, ext extractor, mask adjusted.Mask) (*adjusted.Array, error) {
	rows, cols := len(snap.Dates()), len(snap.Assets())
	baseline := adjusted.NewMatrix(ext.dtype, rows, cols)
	defined := make([]bool, rows*cols)
	adjustments := make(map[int][]adjusted.Overwrite)

	for j := 0; j < cols; j++ {
		final := adjusted.MissingValues(ext.dtype, 1)
		if last := requested[rows-1][j]; last.Present {
			ext.store(final, 0, snap.Cell(rows-1, j, last.Shifted), last.Shifted)
		}
		for i := 0; i < rows; i++ {
			if !requested[i][j].Present {
				continue
			}
			defined[i*cols+j] = true
			if ext.dtype == adjusted.Datetime {
				baseline.Times[i*cols+j] = final.Times[0]
			} else {
				baseline.Floats[i*cols+j] = final.Floats[0]
			}
		}

		for r := 1; r < rows; r++ {
			prev, cur := requested[r-1][j], requested[r][j]
			if sameState(prev, cur) {
				continue
			}

			var values adjusted.Values
			if prev.Present && snap.Disclosed(j, prev.Shifted) {
				values = ext.history(snap, j, prev.Shifted, r)
			} else {
				values = adjusted.MissingValues(ext.dtype, r)
			}
			adjustments[r] = append(adjustments[r], adjusted.Overwrite{
				FirstRow: 0,
				LastRow:  r - 1,
				Column:   j,
				Values:   values,
			})
		}
	}

	return adjusted.New(baseline, defined, mask, adjustments)
}

func sameState(a, b Requested) bool {
	if a.Present != b.Present {
		return false
	}
	return !a.Present || a.Shifted == b.Shifted
}
