package estimates

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharongu/zipline/internal/adjusted"
	apperrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/events"
	"github.com/sharongu/zipline/internal/events/eventstest"
	"github.com/sharongu/zipline/internal/shared/testutil"
)

var day = eventstest.Day

func newLoader(t *testing.T, selector Selector, rows ...eventstest.Row) *Loader {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	loader, err := NewLoader(selector, eventstest.Table(t, rows...), eventstest.FieldMap(), WithLogger(logger))
	require.NoError(t, err)
	return loader
}

func loadOne(t *testing.T, loader *Loader, column Column, dates []time.Time, assets ...string) *adjusted.Array {
	t.Helper()
	out, err := loader.Load(context.Background(), []Column{column}, dates, assets, nil)
	require.NoError(t, err)
	require.Contains(t, out, column)
	return out[column]
}

func lastRowAsOf(t *testing.T, arr *adjusted.Array, end, col int) float64 {
	t.Helper()
	view, err := arr.AsOf(end)
	require.NoError(t, err)
	return view.Float(end, col)
}

// Q1 estimate 10.0 known from day 1; Q2 estimate 12.0 known from day 5 with
// an event date of day 10.
func previousScenarioRows() []eventstest.Row {
	return []eventstest.Row{
		{Sid: "A", Timestamp: day(1), EventDate: day(1), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 10},
		{Sid: "A", Timestamp: day(5), EventDate: day(10), FiscalYear: 2024, FiscalQuarter: 2, Estimate: 12},
	}
}

func TestLoad_PreviousScenario(t *testing.T) {
	loader := newLoader(t, Previous, previousScenarioRows()...)
	arr := loadOne(t, loader, FloatColumn("estimate", 1), eventstest.Days(1, 12), "A")

	// one overwrite, at the row of day 10, restoring Q1 for rows 0-8
	require.Equal(t, []int{9}, arr.AdjustmentRows())
	ows := arr.Adjustments(9)
	require.Len(t, ows, 1)
	assert.Equal(t, 0, ows[0].FirstRow)
	assert.Equal(t, 8, ows[0].LastRow)
	assert.Equal(t, 0, ows[0].Column)
	assert.Equal(t, []float64{10, 10, 10, 10, 10, 10, 10, 10, 10}, ows[0].Values.Floats)

	// the baseline is Q2 as known on day 12, on every row
	base := arr.Baseline()
	for row := 0; row < 12; row++ {
		assert.Equal(t, 12.0, base.Float(row, 0), "row %d", row)
		assert.True(t, arr.Defined(row, 0), "row %d", row)
	}

	window, err := arr.Window(11, 12)
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12}, window.Floats)

	for end := 0; end < 12; end++ {
		want := 10.0
		if end >= 9 {
			want = 12.0
		}
		assert.Equal(t, want, lastRowAsOf(t, arr, end, 0), "window ending day %d", end+1)
	}

	view, err := arr.AsOf(8)
	require.NoError(t, err)
	for row := 0; row <= 8; row++ {
		assert.Equal(t, 10.0, view.Float(row, 0))
	}
}

func TestLoad_PreviousScenarioKnownFromStart(t *testing.T) {
	rows := previousScenarioRows()
	rows[1].Timestamp = day(1)
	loader := newLoader(t, Previous, rows...)

	arr := loadOne(t, loader, FloatColumn("estimate", 1), eventstest.Days(1, 12), "A")

	base := arr.Baseline()
	for row := 0; row < 12; row++ {
		assert.Equal(t, 12.0, base.Float(row, 0))
	}
	assert.Equal(t, []int{9}, arr.AdjustmentRows())
	assert.Equal(t, 10.0, lastRowAsOf(t, arr, 8, 0))
}

// Q1 releases on day 6 and is revised on day 4; Q2 releases on day 12.
func causalityRows() []eventstest.Row {
	return []eventstest.Row{
		{Sid: "A", Timestamp: day(1), EventDate: day(6), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 10},
		{Sid: "A", Timestamp: day(1), EventDate: day(12), FiscalYear: 2024, FiscalQuarter: 2, Estimate: 20},
		{Sid: "A", Timestamp: day(4), EventDate: day(6), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 11},
	}
}

func TestLoad_CausalityReturnsStaleValueBeforeRevision(t *testing.T) {
	loader := newLoader(t, Next, causalityRows()...)
	arr := loadOne(t, loader, FloatColumn("estimate", 1), eventstest.Days(1, 8), "A")

	view, err := arr.AsOf(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 10, 10}, view.Floats)

	view, err = arr.AsOf(4)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 10, 10, 11, 11}, view.Floats)

	view, err = arr.AsOf(7)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 20, 20, 20, 20, 20, 20, 20}, view.Floats)
}

func TestLoad_WindowEndMatchesRequestedSnapshot(t *testing.T) {
	rows := append(causalityRows(),
		eventstest.Row{Sid: "B", Timestamp: day(2), EventDate: day(3), FiscalYear: 2023, FiscalQuarter: 4, Estimate: 1},
		eventstest.Row{Sid: "B", Timestamp: day(3), EventDate: day(7), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 2},
		eventstest.Row{Sid: "B", Timestamp: day(6), EventDate: day(7), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 3},
	)
	dates := eventstest.Days(1, 8)
	assets := []string{"A", "B"}

	for _, selector := range []Selector{Next, Previous} {
		for _, n := range []int{0, 1, 2} {
			loader := newLoader(t, selector, rows...)
			arr := loadOne(t, loader, FloatColumn("estimate", n), dates, assets...)

			snap := BuildSnapshot(loader.Events(), dates, assets)
			requested := SelectQuarters(snap, selector, n)
			field, _ := loader.Events().FieldIndex(eventstest.EstimateColumn)

			for end := range dates {
				view, err := arr.AsOf(end)
				require.NoError(t, err)
				for j := range assets {
					want := math.NaN()
					if req := requested[end][j]; req.Present {
						if cell := snap.Cell(end, j, req.Shifted); cell.Present {
							want = cell.Values[field].Float()
						}
					}
					got := view.Float(end, j)
					if math.IsNaN(want) {
						assert.True(t, math.IsNaN(got), "%s n=%d end=%d asset=%s: got %v", selector, n, end, assets[j], got)
					} else {
						assert.Equal(t, want, got, "%s n=%d end=%d asset=%s", selector, n, end, assets[j])
					}
				}
			}
		}
	}
}

func TestLoad_MissingQuarterUsesSentinel(t *testing.T) {
	loader := newLoader(t, Next,
		eventstest.Row{Sid: "A", Timestamp: day(1), EventDate: day(4), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 1},
		eventstest.Row{Sid: "A", Timestamp: day(1), EventDate: day(8), FiscalYear: 2024, FiscalQuarter: 2, Estimate: 2},
	)
	arr := loadOne(t, loader, FloatColumn("estimate", 2), eventstest.Days(1, 10), "A")

	require.Equal(t, []int{4, 8}, arr.AdjustmentRows())
	assert.Equal(t, []float64{2, 2, 2, 2}, arr.Adjustments(4)[0].Values.Floats)

	sentinel := arr.Adjustments(8)[0].Values.Floats
	require.Len(t, sentinel, 8)
	for _, v := range sentinel {
		assert.True(t, math.IsNaN(v))
	}

	// windows asking for the undisclosed third quarter never see the baseline
	for end := 4; end <= 7; end++ {
		view, err := arr.AsOf(end)
		require.NoError(t, err)
		for row := 0; row <= end; row++ {
			assert.True(t, math.IsNaN(view.Float(row, 0)), "end %d row %d", end, row)
		}
	}
	assert.Equal(t, 2.0, lastRowAsOf(t, arr, 3, 0))

	// rows with a requested quarter are defined even though that quarter
	// holds no value on the last date
	for row := 0; row < 10; row++ {
		assert.Equal(t, row < 8, arr.Defined(row, 0), "row %d", row)
		assert.True(t, math.IsNaN(arr.Baseline().Float(row, 0)), "row %d", row)
	}
}

func TestLoad_BaselineUsesFinalRevision(t *testing.T) {
	loader := newLoader(t, Previous,
		eventstest.Row{Sid: "A", Timestamp: day(1), EventDate: day(2), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 10},
		eventstest.Row{Sid: "A", Timestamp: day(4), EventDate: day(2), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 11},
	)
	arr := loadOne(t, loader, FloatColumn("estimate", 1), eventstest.Days(1, 5), "A")

	assert.Empty(t, arr.AdjustmentRows())
	assert.False(t, arr.Defined(0, 0), "nothing released by day 1")
	assert.True(t, math.IsNaN(arr.Baseline().Float(0, 0)))
	for row := 1; row < 5; row++ {
		assert.True(t, arr.Defined(row, 0), "row %d", row)
		assert.Equal(t, 11.0, arr.Baseline().Float(row, 0), "row %d", row)
	}
}

func TestLoad_DatetimeOutsideStorageRangeIsNaT(t *testing.T) {
	loader := newLoader(t, Previous,
		eventstest.Row{Sid: "A", Timestamp: day(1), EventDate: day(1), FiscalYear: 2024, FiscalQuarter: 1, Estimate: 1},
	)
	column := DatetimeColumn("event_date", 1)
	arr := loadOne(t, loader, column, eventstest.Days(1, 2), "A")
	got, ok := arr.Baseline().Time(1, 0)
	require.True(t, ok)
	assert.Equal(t, day(1), got)

	far := time.Date(2400, 1, 1, 0, 0, 0, 0, time.UTC)
	out := adjusted.MissingValues(adjusted.Datetime, 1)
	newExtractor(events.EventDateColumn, 0, adjusted.Datetime).store(out, 0,
		SnapshotCell{Present: true, EventDate: far, Values: []events.Value{events.Time(far)}}, 0)
	assert.Equal(t, adjusted.NaT, out.Times[0])
}

func TestLoad_FiscalAndDatetimeFields(t *testing.T) {
	loader := newLoader(t, Next, causalityRows()...)
	dates := eventstest.Days(1, 8)
	columns := []Column{
		FloatColumn("fiscal_quarter", 1),
		FloatColumn("fiscal_year", 2),
		DatetimeColumn("event_date", 1),
	}

	out, err := loader.Load(context.Background(), columns, dates, []string{"A"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)

	fq := out[columns[0]]
	assert.Equal(t, 2.0, fq.Baseline().Float(0, 0))
	assert.Equal(t, 1.0, lastRowAsOf(t, fq, 5, 0))

	// two quarters ahead of Q2 was never disclosed
	fy := out[columns[1]]
	assert.True(t, math.IsNaN(fy.Baseline().Float(7, 0)))
	assert.Equal(t, 2024.0, lastRowAsOf(t, fy, 5, 0))

	ed := out[columns[2]]
	assert.Equal(t, adjusted.Datetime, ed.DType())
	got, ok := ed.Baseline().Time(0, 0)
	require.True(t, ok)
	assert.Equal(t, day(12), got)

	view, err := ed.AsOf(5)
	require.NoError(t, err)
	got, ok = view.Time(5, 0)
	require.True(t, ok)
	assert.Equal(t, day(6), got)
	assert.Equal(t, []int64{day(6).UnixNano()}, ed.Adjustments(6)[0].Values.Times[:1])
}

func TestLoad_NegativeQuartersShortCircuits(t *testing.T) {
	columns := []Column{FloatColumn("estimate", 1), FloatColumn("estimate", -1)}
	unsorted := []time.Time{day(3), day(1)}

	// a zero Loader has no event table; any access would panic
	var empty Loader
	_, err := empty.Load(context.Background(), columns, unsorted, nil, adjusted.Mask{{true}})
	require.Error(t, err)

	var paramErr *apperrors.InvalidParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "num_quarters", paramErr.Parameter)
	assert.Equal(t, -1, paramErr.Value)
}

func TestLoad_InvalidQueries(t *testing.T) {
	loader := newLoader(t, Previous, previousScenarioRows()...)
	column := FloatColumn("estimate", 1)
	dates := eventstest.Days(1, 3)

	tests := []struct {
		name      string
		columns   []Column
		dates     []time.Time
		assets    []string
		mask      adjusted.Mask
		parameter string
	}{
		{"no dates", []Column{column}, nil, []string{"A"}, nil, "dates"},
		{"repeated date", []Column{column}, []time.Time{day(1), day(1)}, []string{"A"}, nil, "dates"},
		{"no assets", []Column{column}, dates, nil, nil, "assets"},
		{"duplicate asset", []Column{column}, dates, []string{"A", "A"}, nil, "assets"},
		{"short mask", []Column{column}, dates, []string{"A"}, adjusted.FullMask(2, 1), "mask"},
		{"narrow mask", []Column{column}, dates, []string{"A"}, adjusted.FullMask(3, 2), "mask"},
		{"unknown column", []Column{FloatColumn("revenue", 1)}, dates, []string{"A"}, nil, "column"},
		{"no dtype", []Column{{Name: "estimate", NumQuarters: 1}}, dates, []string{"A"}, nil, "dtype"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(context.Background(), tt.columns, tt.dates, tt.assets, tt.mask)
			require.Error(t, err)

			var paramErr *apperrors.InvalidParameterError
			require.ErrorAs(t, err, &paramErr)
			assert.Equal(t, tt.parameter, paramErr.Parameter)
		})
	}
}

func TestLoad_MaskPassedThrough(t *testing.T) {
	loader := newLoader(t, Previous, previousScenarioRows()...)
	mask := adjusted.Mask{{true, false}, {false, true}}

	out, err := loader.Load(context.Background(), []Column{FloatColumn("estimate", 1)}, eventstest.Days(1, 2), []string{"A", "Z"}, mask)
	require.NoError(t, err)

	arr := out[FloatColumn("estimate", 1)]
	assert.Equal(t, mask, arr.Mask())

	// Z has no events at all
	for row := 0; row < 2; row++ {
		assert.False(t, arr.Defined(row, 1))
	}
	assert.Empty(t, arr.AdjustmentRows())
}

func TestLoad_EmptyColumns(t *testing.T) {
	loader := newLoader(t, Next, previousScenarioRows()...)

	out, err := loader.Load(context.Background(), nil, eventstest.Days(1, 2), []string{"A"}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoad_CancelledContext(t *testing.T) {
	loader := newLoader(t, Next, previousScenarioRows()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, []Column{FloatColumn("estimate", 1)}, eventstest.Days(1, 2), []string{"A"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLoader(t *testing.T) {
	t.Run("schema error", func(t *testing.T) {
		table := events.NewTable()
		require.NoError(t, table.AddStringColumn(events.SidColumn, []string{"A"}))

		_, err := NewLoader(Next, table, eventstest.FieldMap())
		assert.True(t, apperrors.IsSchemaError(err))
	})

	t.Run("invalid selector", func(t *testing.T) {
		_, err := NewLoader(Selector(0), eventstest.Table(t), eventstest.FieldMap())
		assert.True(t, apperrors.IsInvalidParameter(err))
	})

	t.Run("logs table stats", func(t *testing.T) {
		logger, logs := testutil.NewTestLogger(t)
		rows := append(previousScenarioRows(),
			eventstest.Row{Sid: "A", Timestamp: day(1), FiscalYear: 2024, FiscalQuarter: 3, Estimate: 1})

		loader, err := NewLoader(Previous, eventstest.Table(t, rows...), eventstest.FieldMap(), WithLogger(logger))
		require.NoError(t, err)

		assert.Len(t, loader.Events().Rows, 2)
		assert.Equal(t, []string{"estimate", "event_date", "fiscal_quarter", "fiscal_year"}, loader.Fields())
		assert.Equal(t, Previous, loader.Selector())
		testutil.AssertLogContains(t, logs, slog.LevelInfo, "validated event table")
		testutil.AssertLogAttr(t, logs, "dropped", int64(1))
		testutil.AssertLogAttr(t, logs, "component", "estimates_loader")
	})
}

func TestLoader_WithSelector(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	previous, err := NewLoader(Previous, eventstest.Table(t, previousScenarioRows()...), eventstest.FieldMap(), WithLogger(logger))
	require.NoError(t, err)

	next, err := previous.WithSelector(Next)
	require.NoError(t, err)
	assert.Same(t, previous.Events(), next.Events())
	assert.Equal(t, Next, next.Selector())
	assert.Equal(t, Previous, previous.Selector())
	assert.Len(t, logs.Messages("validated event table"), 1)

	// on day 6 Q1 has been released and Q2 is known but not yet released
	dates := eventstest.Days(1, 6)
	assert.Equal(t, 12.0, lastRowAsOf(t, loadOne(t, next, FloatColumn("estimate", 1), dates, "A"), 5, 0))
	assert.Equal(t, 10.0, lastRowAsOf(t, loadOne(t, previous, FloatColumn("estimate", 1), dates, "A"), 5, 0))
	testutil.AssertLogAttr(t, logs, "selector", "next")

	_, err = previous.WithSelector(Selector(0))
	assert.True(t, apperrors.IsInvalidParameter(err))
}

func TestGroupByQuarters(t *testing.T) {
	columns := []Column{
		FloatColumn("b", 2),
		FloatColumn("a", 1),
		FloatColumn("b", 2),
		DatetimeColumn("c", 2),
		FloatColumn("a", 0),
	}

	groups := groupByQuarters(columns)
	require.Len(t, groups, 3)
	assert.Equal(t, 0, groups[0].numQuarters)
	assert.Equal(t, 1, groups[1].numQuarters)
	assert.Equal(t, 2, groups[2].numQuarters)
	assert.Equal(t, []Column{FloatColumn("b", 2), DatetimeColumn("c", 2)}, groups[2].columns)
}

func TestColumnString(t *testing.T) {
	assert.Equal(t, "estimate[2]", FloatColumn("estimate", 2).String())
}
