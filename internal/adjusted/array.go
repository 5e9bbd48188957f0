package adjusted

import (
	"fmt"
	"sort"
)

// Overwrite replaces rows [FirstRow, LastRow] of one asset column with
// Values for any window that ends before the row it is keyed at.
type Overwrite struct {
	FirstRow int
	LastRow  int
	Column   int
	Values   Values
}

// Mask is the caller's (date x asset) validity mask. It is carried through
// unchanged and never interpreted here.
type Mask [][]bool

// FullMask returns a rows x cols mask with every cell set
func FullMask(rows, cols int) Mask {
	m := make(Mask, rows)
	for i := range m {
		m[i] = make([]bool, cols)
		for j := range m[i] {
			m[i][j] = true
		}
	}
	return m
}

// Array is a baseline matrix plus the historical overwrites needed to
// reconstruct what was known as of any earlier row.
type Array struct {
	baseline    *Matrix
	defined     []bool
	mask        Mask
	adjustments map[int][]Overwrite
	keys        []int
}

// New assembles an Array. defined is row-major like the baseline and marks
// cells that received a value. Overwrites must lie strictly before their key.
func New(baseline *Matrix, defined []bool, mask Mask, adjustments map[int][]Overwrite) (*Array, error) {
	if len(defined) != baseline.Rows*baseline.Cols {
		return nil, fmt.Errorf("defined has %d cells, baseline has %d", len(defined), baseline.Rows*baseline.Cols)
	}
	if len(mask) != baseline.Rows {
		return nil, fmt.Errorf("mask has %d rows, baseline has %d", len(mask), baseline.Rows)
	}
	for i, row := range mask {
		if len(row) != baseline.Cols {
			return nil, fmt.Errorf("mask row %d has %d columns, baseline has %d", i, len(row), baseline.Cols)
		}
	}

	keys := make([]int, 0, len(adjustments))
	for key, ows := range adjustments {
		if key <= 0 || key >= baseline.Rows {
			return nil, fmt.Errorf("adjustment keyed at row %d outside (0, %d)", key, baseline.Rows)
		}
		for _, ow := range ows {
			if ow.FirstRow < 0 || ow.LastRow >= key || ow.FirstRow > ow.LastRow {
				return nil, fmt.Errorf("overwrite [%d, %d] keyed at %d is not before its key", ow.FirstRow, ow.LastRow, key)
			}
			if ow.Column < 0 || ow.Column >= baseline.Cols {
				return nil, fmt.Errorf("overwrite column %d outside [0, %d)", ow.Column, baseline.Cols)
			}
			if ow.Values.Len() != ow.LastRow-ow.FirstRow+1 {
				return nil, fmt.Errorf("overwrite at %d carries %d values for %d rows", key, ow.Values.Len(), ow.LastRow-ow.FirstRow+1)
			}
		}
		keys = append(keys, key)
	}
	sort.Ints(keys)

	return &Array{
		baseline:    baseline,
		defined:     defined,
		mask:        mask,
		adjustments: adjustments,
		keys:        keys,
	}, nil
}

// DType returns the storage type
func (a *Array) DType() DType { return a.baseline.DType }

// Shape returns (dates, assets)
func (a *Array) Shape() (int, int) { return a.baseline.Rows, a.baseline.Cols }

// Baseline returns a copy of the raw matrix with no overwrites applied
func (a *Array) Baseline() *Matrix { return a.baseline.slice(0, a.baseline.Rows-1) }

// Defined reports whether the baseline cell received a value
func (a *Array) Defined(row, col int) bool { return a.defined[row*a.baseline.Cols+col] }

// Mask returns the validity mask passed in by the caller
func (a *Array) Mask() Mask { return a.mask }

// AdjustmentRows returns the rows that carry overwrites, ascending
func (a *Array) AdjustmentRows() []int {
	return append([]int(nil), a.keys...)
}

// Adjustments returns the overwrites keyed at row
func (a *Array) Adjustments(row int) []Overwrite {
	return a.adjustments[row]
}

// AdjustmentCount returns the total number of overwrites
func (a *Array) AdjustmentCount() int {
	n := 0
	for _, ows := range a.adjustments {
		n += len(ows)
	}
	return n
}

// AsOf returns rows [0, end] as they were known on row end: every
// overwrite keyed after end is applied, in descending key order so the
// nearest boundary wins.
func (a *Array) AsOf(end int) (*Matrix, error) {
	if end < 0 || end >= a.baseline.Rows {
		return nil, fmt.Errorf("window end %d outside [0, %d)", end, a.baseline.Rows)
	}

	out := a.baseline.slice(0, end)
	for i := len(a.keys) - 1; i >= 0 && a.keys[i] > end; i-- {
		for _, ow := range a.adjustments[a.keys[i]] {
			if ow.FirstRow > end {
				continue
			}
			last := ow.LastRow
			if last > end {
				last = end
			}
			out.setColumn(ow.Column, ow.FirstRow, truncate(ow.Values, last-ow.FirstRow+1))
		}
	}
	return out, nil
}

// Window returns the trailing window of length rows ending at end
func (a *Array) Window(end, length int) (*Matrix, error) {
	if length <= 0 || length > end+1 {
		return nil, fmt.Errorf("window length %d invalid for end %d", length, end)
	}
	full, err := a.AsOf(end)
	if err != nil {
		return nil, err
	}
	return full.slice(end-length+1, end), nil
}

func truncate(v Values, n int) Values {
	if v.Times != nil {
		return Values{Times: v.Times[:n]}
	}
	return Values{Floats: v.Floats[:n]}
}
