package exporter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sharongu/zipline/internal/adjusted"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{name: "zero value", input: 0.0, expected: "0"},
		{name: "positive integer", input: 123.0, expected: "123"},
		{name: "negative integer", input: -456.0, expected: "-456"},
		{name: "decimal keeps full precision", input: 0.1234567891, expected: "0.1234567891"},
		{name: "negative decimal", input: -789.125, expected: "-789.125"},
		{name: "missing value", input: math.NaN(), expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatFloat(tt.input))
		})
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{name: "midnight is a date", input: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), expected: "2024-01-02"},
		{name: "intraday", input: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), expected: "2024-01-02T09:30:00Z"},
		{name: "converted to UTC", input: time.Date(2024, 1, 2, 3, 0, 0, 0, time.FixedZone("X", 3*3600)), expected: "2024-01-02"},
		{name: "zero", input: time.Time{}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTime(tt.input))
		})
	}
}

func TestFormatValue(t *testing.T) {
	floats := adjusted.Values{Floats: []float64{1.5, math.NaN()}}
	assert.Equal(t, "1.5", formatValue(adjusted.Float64, floats, 0))
	assert.Equal(t, "", formatValue(adjusted.Float64, floats, 1))
	assert.Equal(t, 1.5, cellValue(adjusted.Float64, floats, 0))
	assert.Nil(t, cellValue(adjusted.Float64, floats, 1))

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	times := adjusted.Values{Times: []int64{adjusted.FromTime(day), adjusted.NaT}}
	assert.Equal(t, "2024-03-01", formatValue(adjusted.Datetime, times, 0))
	assert.Equal(t, "", formatValue(adjusted.Datetime, times, 1))
	assert.Equal(t, day, cellValue(adjusted.Datetime, times, 0))
	assert.Nil(t, cellValue(adjusted.Datetime, times, 1))
}

func TestFormatInt(t *testing.T) {
	assert.Equal(t, "0", formatInt(0))
	assert.Equal(t, "-3", formatInt(-3))
	assert.Equal(t, "42", formatInt(42))
}
