package events

import (
	"math"
	"time"
)

// Kind identifies the storage type of a table column or a field value
type Kind int

const (
	// KindFloat holds numeric data; NaN is null
	KindFloat Kind = iota + 1
	// KindTime holds timestamps; the zero time is null
	KindTime
	// KindString holds identifiers; the empty string is null
	KindString
)

// String returns the lowercase name of the kind
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a single nullable cell of a numeric or timestamp field
type Value struct {
	kind  Kind
	num   float64
	ts    time.Time
	valid bool
}

// Float wraps a numeric value. NaN produces a null value.
func Float(f float64) Value {
	return Value{kind: KindFloat, num: f, valid: !math.IsNaN(f)}
}

// Time wraps a timestamp. The zero time produces a null value.
func Time(t time.Time) Value {
	return Value{kind: KindTime, ts: t, valid: !t.IsZero()}
}

// Null returns a missing value of the given kind
func Null(kind Kind) Value {
	return Value{kind: kind}
}

// Kind returns the kind the value was created with
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is missing
func (v Value) IsNull() bool { return !v.valid }

// Float returns the numeric value, or NaN when the value is null or not numeric
func (v Value) Float() float64 {
	if !v.valid || v.kind != KindFloat {
		return math.NaN()
	}
	return v.num
}

// Time returns the timestamp and whether it is present
func (v Value) Time() (time.Time, bool) {
	if !v.valid || v.kind != KindTime {
		return time.Time{}, false
	}
	return v.ts, true
}
