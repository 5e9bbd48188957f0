package exporter

import (
	"math"
	"strconv"
	"time"

	"github.com/sharongu/zipline/internal/adjusted"
)

// formatFloat formats a float64 value for CSV output at full precision.
// NaN is the missing value and renders as an empty cell.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatTime renders midnight UTC as a plain date and anything else as
// RFC 3339 with nanoseconds. The zero time renders empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339Nano)
}

// formatNanos renders datetime storage; NaT renders empty
func formatNanos(ns int64) string {
	t, ok := adjusted.ToTime(ns)
	if !ok {
		return ""
	}
	return formatTime(t)
}

// formatValue renders element i of v
func formatValue(dtype adjusted.DType, v adjusted.Values, i int) string {
	if dtype == adjusted.Datetime {
		return formatNanos(v.Times[i])
	}
	return formatFloat(v.Floats[i])
}

// formatCell renders cell (row, col) of m
func formatCell(m *adjusted.Matrix, row, col int) string {
	if m.DType == adjusted.Datetime {
		return formatNanos(m.Times[row*m.Cols+col])
	}
	return formatFloat(m.Float(row, col))
}

// cellValue converts element i of v to an XLSX cell value; missing values
// become nil so the cell stays blank.
func cellValue(dtype adjusted.DType, v adjusted.Values, i int) interface{} {
	if dtype == adjusted.Datetime {
		t, ok := adjusted.ToTime(v.Times[i])
		if !ok {
			return nil
		}
		return t
	}
	if math.IsNaN(v.Floats[i]) {
		return nil
	}
	return v.Floats[i]
}
