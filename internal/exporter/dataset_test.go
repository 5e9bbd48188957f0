package exporter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharongu/zipline/internal/adjusted"
	"github.com/sharongu/zipline/internal/estimates"
)

var (
	estimateCol  = estimates.FloatColumn("estimate", 1)
	eventDateCol = estimates.DatetimeColumn("event_date", 1)
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func allDefined(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

// testDataset has three dates and two assets. The estimate of A switches
// quarters on the last date, so windows ending earlier read 9.
func testDataset(t *testing.T) Dataset {
	t.Helper()

	floats := adjusted.NewMatrix(adjusted.Float64, 3, 2)
	copy(floats.Floats, []float64{1, 2, 1, 2, 3, math.NaN()})
	estimate, err := adjusted.New(floats, allDefined(6), adjusted.FullMask(3, 2), map[int][]adjusted.Overwrite{
		2: {{FirstRow: 0, LastRow: 1, Column: 0, Values: adjusted.Values{Floats: []float64{9, 9}}}},
	})
	require.NoError(t, err)

	times := adjusted.NewMatrix(adjusted.Datetime, 3, 2)
	for i := 0; i < 5; i++ {
		times.Times[i] = adjusted.FromTime(day(10))
	}
	eventDate, err := adjusted.New(times, allDefined(6), adjusted.FullMask(3, 2), nil)
	require.NoError(t, err)

	return Dataset{
		Dates:  []time.Time{day(1), day(2), day(3)},
		Assets: []string{"A", "B"},
		Arrays: map[estimates.Column]*adjusted.Array{
			estimateCol:  estimate,
			eventDateCol: eventDate,
		},
	}
}

func TestDataset_Columns(t *testing.T) {
	ds := testDataset(t)
	ds.Arrays[estimates.FloatColumn("estimate", 0)] = ds.Arrays[estimateCol]

	assert.Equal(t, []estimates.Column{
		estimates.FloatColumn("estimate", 0),
		estimateCol,
		eventDateCol,
	}, ds.Columns())
}

func TestDataset_LongRecords(t *testing.T) {
	records, err := testDataset(t).LongRecords()
	require.NoError(t, err)
	require.Len(t, records, 14)

	assert.Equal(t, []string{"estimate", "1", "float64", RecordBaseline, "", "2024-01-01", "A", "1"}, records[0])
	assert.Equal(t, []string{"estimate", "1", "float64", RecordBaseline, "", "2024-01-03", "B", ""}, records[5])
	assert.Equal(t, []string{"estimate", "1", "float64", RecordOverwrite, "2024-01-03", "2024-01-01", "A", "9"}, records[6])
	assert.Equal(t, []string{"estimate", "1", "float64", RecordOverwrite, "2024-01-03", "2024-01-02", "A", "9"}, records[7])
	assert.Equal(t, []string{"event_date", "1", "datetime64[ns]", RecordBaseline, "", "2024-01-01", "A", "2024-01-10"}, records[8])
	assert.Equal(t, "", records[13][7], "NaT renders empty")

	for _, r := range records {
		assert.Len(t, r, len(LongHeaders()))
	}
}

func TestDataset_SummaryRecords(t *testing.T) {
	assert.Equal(t, [][]string{
		{"estimate", "1", "float64", "3", "2", "1", "1"},
		{"event_date", "1", "datetime64[ns]", "3", "2", "0", "0"},
	}, testDataset(t).SummaryRecords())
}

func TestDataset_Validate(t *testing.T) {
	ds := testDataset(t)
	require.NoError(t, ds.Validate())

	ds.Assets = []string{"A"}
	assert.ErrorContains(t, ds.Validate(), "want 3x1")

	_, err := ds.LongRecords()
	assert.Error(t, err)

	ds = testDataset(t)
	ds.Arrays[estimates.FloatColumn("missing", 2)] = nil
	assert.ErrorContains(t, ds.Validate(), "has no array")
}

func TestDataset_EachRecordStopsOnError(t *testing.T) {
	calls := 0
	err := testDataset(t).EachRecord(func([]string) error {
		calls++
		if calls == 3 {
			return assert.AnError
		}
		return nil
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, calls)
}
