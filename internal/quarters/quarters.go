// Package quarters maps fiscal (year, quarter) pairs onto a dense integer
// timeline so that "N quarters ahead" is plain integer arithmetic.
package quarters

import (
	"fmt"
)

// QuartersPerYear is the number of fiscal quarters in a fiscal year
const QuartersPerYear = 4

// MaxYear bounds the absolute fiscal year Normalize accepts
const MaxYear = 1_000_000

// Normalized is a fiscal period expressed as year*4 + quarter - 1.
// Successive quarters differ by exactly one.
type Normalized int

// Normalize converts a fiscal year and a fiscal quarter (1-4) into a Normalized quarter
func Normalize(year, quarter int) (Normalized, error) {
	if quarter < 1 || quarter > QuartersPerYear {
		return 0, fmt.Errorf("fiscal quarter must be between 1 and %d, got %d", QuartersPerYear, quarter)
	}
	if year < -MaxYear || year > MaxYear {
		return 0, fmt.Errorf("fiscal year must be between -%d and %d, got %d", MaxYear, MaxYear, year)
	}
	return Normalized(year*QuartersPerYear + quarter - 1), nil
}

// MustNormalize is like Normalize but panics on an invalid quarter.
// Intended for constants and tests.
func MustNormalize(year, quarter int) Normalized {
	q, err := Normalize(year, quarter)
	if err != nil {
		panic(err)
	}
	return q
}

// Split returns the fiscal year and fiscal quarter (1-4) of q.
// Floor division keeps the inverse exact for negative years.
func (q Normalized) Split() (year, quarter int) {
	year = floorDiv(int(q), QuartersPerYear)
	quarter = int(q) - year*QuartersPerYear + 1
	return year, quarter
}

// Year returns the fiscal year of q
func (q Normalized) Year() int {
	year, _ := q.Split()
	return year
}

// Quarter returns the fiscal quarter (1-4) of q
func (q Normalized) Quarter() int {
	_, quarter := q.Split()
	return quarter
}

// Add shifts q by n quarters; n may be negative
func (q Normalized) Add(n int) Normalized {
	return q + Normalized(n)
}

// String renders q as e.g. "2024Q3"
func (q Normalized) String() string {
	year, quarter := q.Split()
	return fmt.Sprintf("%dQ%d", year, quarter)
}

func floorDiv(a, b int) int {
	d := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		d--
	}
	return d
}
