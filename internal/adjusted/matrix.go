package adjusted

import (
	"fmt"
	"math"
	"time"
)

// DType is the storage type of an array
type DType int

const (
	// Float64 arrays use NaN as the missing value
	Float64 DType = iota + 1
	// Datetime arrays store Unix nanoseconds and use NaT as the missing value
	Datetime
)

// NaT is the missing value of datetime storage
const NaT int64 = math.MinInt64

// String returns the dtype name used in configs and API payloads
func (d DType) String() string {
	switch d {
	case Float64:
		return "float64"
	case Datetime:
		return "datetime64[ns]"
	default:
		return "unknown"
	}
}

// ParseDType is the inverse of DType.String; "datetime" is accepted too
func ParseDType(s string) (DType, error) {
	switch s {
	case "float64", "float", "":
		return Float64, nil
	case "datetime64[ns]", "datetime":
		return Datetime, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

// range of timestamps datetime storage can hold
var (
	minTime = time.Unix(0, NaT+1).UTC()
	maxTime = time.Unix(0, math.MaxInt64).UTC()
)

// FromTime converts a timestamp to datetime storage. The zero time and
// timestamps outside the nanosecond range (years 1677 to 2262) are NaT.
func FromTime(t time.Time) int64 {
	if t.IsZero() || t.Before(minTime) || t.After(maxTime) {
		return NaT
	}
	return t.UnixNano()
}

// ToTime converts datetime storage back to a UTC timestamp
func ToTime(ns int64) (time.Time, bool) {
	if ns == NaT {
		return time.Time{}, false
	}
	return time.Unix(0, ns).UTC(), true
}

// Matrix is a dense row-major (date x asset) matrix. Exactly one of Floats
// and Times is populated, matching DType.
type Matrix struct {
	DType  DType
	Rows   int
	Cols   int
	Floats []float64
	Times  []int64
}

// NewMatrix allocates a matrix filled with the dtype's missing value
func NewMatrix(dtype DType, rows, cols int) *Matrix {
	m := &Matrix{DType: dtype, Rows: rows, Cols: cols}
	switch dtype {
	case Datetime:
		m.Times = make([]int64, rows*cols)
		for i := range m.Times {
			m.Times[i] = NaT
		}
	default:
		m.Floats = make([]float64, rows*cols)
		for i := range m.Floats {
			m.Floats[i] = math.NaN()
		}
	}
	return m
}

// Float returns cell (row, col) of a Float64 matrix
func (m *Matrix) Float(row, col int) float64 {
	return m.Floats[row*m.Cols+col]
}

// Time returns cell (row, col) of a Datetime matrix
func (m *Matrix) Time(row, col int) (time.Time, bool) {
	return ToTime(m.Times[row*m.Cols+col])
}

// IsMissing reports whether cell (row, col) holds the missing value
func (m *Matrix) IsMissing(row, col int) bool {
	if m.DType == Datetime {
		return m.Times[row*m.Cols+col] == NaT
	}
	return math.IsNaN(m.Floats[row*m.Cols+col])
}

// Column copies one asset's column for rows [first, last]
func (m *Matrix) Column(col, first, last int) Values {
	n := last - first + 1
	if m.DType == Datetime {
		out := make([]int64, n)
		for i := 0; i < n; i++ {
			out[i] = m.Times[(first+i)*m.Cols+col]
		}
		return Values{Times: out}
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = m.Floats[(first+i)*m.Cols+col]
	}
	return Values{Floats: out}
}

func (m *Matrix) setColumn(col, first int, v Values) {
	if m.DType == Datetime {
		for i, x := range v.Times {
			m.Times[(first+i)*m.Cols+col] = x
		}
		return
	}
	for i, x := range v.Floats {
		m.Floats[(first+i)*m.Cols+col] = x
	}
}

// slice copies rows [first, last] into a new matrix
func (m *Matrix) slice(first, last int) *Matrix {
	rows := last - first + 1
	out := &Matrix{DType: m.DType, Rows: rows, Cols: m.Cols}
	if m.DType == Datetime {
		out.Times = append([]int64(nil), m.Times[first*m.Cols:(last+1)*m.Cols]...)
	} else {
		out.Floats = append([]float64(nil), m.Floats[first*m.Cols:(last+1)*m.Cols]...)
	}
	return out
}

// Values is a replacement vector for one overwrite
type Values struct {
	Floats []float64
	Times  []int64
}

// Len returns the number of replacement values
func (v Values) Len() int {
	if v.Times != nil {
		return len(v.Times)
	}
	return len(v.Floats)
}

// MissingValues returns n copies of the dtype's missing value
func MissingValues(dtype DType, n int) Values {
	if dtype == Datetime {
		out := make([]int64, n)
		for i := range out {
			out[i] = NaT
		}
		return Values{Times: out}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return Values{Floats: out}
}
