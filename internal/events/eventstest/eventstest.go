// Package eventstest builds small estimates tables for tests.
package eventstest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sharongu/zipline/internal/events"
)

// Day returns midnight UTC of the given day in January 2024. Tests count
// simulation dates from Day(1).
func Day(n int) time.Time {
	return time.Date(2024, time.January, n, 0, 0, 0, 0, time.UTC)
}

// Days returns Day(from) through Day(to) inclusive
func Days(from, to int) []time.Time {
	out := make([]time.Time, 0, to-from+1)
	for d := from; d <= to; d++ {
		out = append(out, Day(d))
	}
	return out
}

// Row is one event. Zero times and NaN floats are nulls.
type Row struct {
	Sid           string
	Timestamp     time.Time
	EventDate     time.Time
	FiscalYear    float64
	FiscalQuarter float64
	Estimate      float64
}

// EstimateColumn is the float field column every fixture table carries
const EstimateColumn = "estimate"

// NaN is shorthand for a null float cell
var NaN = math.NaN()

// Table builds a table with the structural columns plus EstimateColumn
func Table(t testing.TB, rows ...Row) *events.Table {
	t.Helper()

	sids := make([]string, len(rows))
	ts := make([]time.Time, len(rows))
	eventDates := make([]time.Time, len(rows))
	years := make([]float64, len(rows))
	qtrs := make([]float64, len(rows))
	estimates := make([]float64, len(rows))
	for i, r := range rows {
		sids[i] = r.Sid
		ts[i] = r.Timestamp
		eventDates[i] = r.EventDate
		years[i] = r.FiscalYear
		qtrs[i] = r.FiscalQuarter
		estimates[i] = r.Estimate
	}

	table := events.NewTable()
	require.NoError(t, table.AddStringColumn(events.SidColumn, sids))
	require.NoError(t, table.AddTimeColumn(events.TimestampColumn, ts))
	require.NoError(t, table.AddTimeColumn(events.EventDateColumn, eventDates))
	require.NoError(t, table.AddFloatColumn(events.FiscalYearColumn, years))
	require.NoError(t, table.AddFloatColumn(events.FiscalQuarterColumn, qtrs))
	require.NoError(t, table.AddFloatColumn(EstimateColumn, estimates))
	return table
}

// FieldMap maps the logical "estimate" field plus the structural fiscal and
// event date columns so tests can request them as fields.
func FieldMap() events.FieldMap {
	return events.NewFieldMap(map[string]string{
		"estimate":       EstimateColumn,
		"event_date":     events.EventDateColumn,
		"fiscal_year":    events.FiscalYearColumn,
		"fiscal_quarter": events.FiscalQuarterColumn,
	})
}
