package events

import (
	"fmt"
	"math"
	"sort"
	"time"

	apperrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/quarters"
)

// Event is one disclosed estimate that can be placed on both the knowledge
// timeline and the fiscal quarter timeline.
type Event struct {
	// Index is the row position in the source table; it breaks ties
	// between events known at the same instant.
	Index         int
	Asset         string
	Timestamp     time.Time
	EventDate     time.Time
	FiscalYear    int
	FiscalQuarter int
	Quarter       quarters.Normalized
	// Values is aligned with Events.Fields
	Values []Value
}

// Events is the validated, read-only event set a loader works from
type Events struct {
	Rows []Event
	// Fields lists the physical field columns, sorted
	Fields []string
	// Kinds is aligned with Fields
	Kinds   []Kind
	Dropped int

	fieldIndex map[string]int
}

// FieldIndex returns the position of a physical column in Event.Values
func (e *Events) FieldIndex(column string) (int, bool) {
	i, ok := e.fieldIndex[column]
	return i, ok
}

// Assets returns the distinct asset ids present, sorted
func (e *Events) Assets() []string {
	seen := make(map[string]struct{})
	var assets []string
	for _, ev := range e.Rows {
		if _, ok := seen[ev.Asset]; ok {
			continue
		}
		seen[ev.Asset] = struct{}{}
		assets = append(assets, ev.Asset)
	}
	sort.Strings(assets)
	return assets
}

// RequiredColumns returns the structural columns plus every physical
// column referenced by fields, sorted.
func RequiredColumns(fields FieldMap) []string {
	required := map[string]struct{}{
		TimestampColumn:     {},
		SidColumn:           {},
		EventDateColumn:     {},
		FiscalQuarterColumn: {},
		FiscalYearColumn:    {},
	}
	for _, column := range fields.PhysicalColumns() {
		required[column] = struct{}{}
	}

	out := make([]string, 0, len(required))
	for column := range required {
		out = append(out, column)
	}
	sort.Strings(out)
	return out
}

var structuralKinds = []struct {
	name string
	kind Kind
}{
	{TimestampColumn, KindTime},
	{SidColumn, KindString},
	{EventDateColumn, KindTime},
	{FiscalQuarterColumn, KindFloat},
	{FiscalYearColumn, KindFloat},
}

// Validate checks that table can serve fields and returns the events that
// can be placed on the quarter timeline. Rows with a null event date,
// fiscal year or fiscal quarter are dropped, as are rows whose asset id or
// knowledge timestamp is null or whose fiscal quarter is not 1..4.
func Validate(table *Table, fields FieldMap) (*Events, error) {
	required := RequiredColumns(fields)
	received := table.ColumnNames()

	var missing []string
	for _, column := range required {
		if _, ok := table.Column(column); !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewSchemaError(missing, received, required)
	}

	for _, s := range structuralKinds {
		col, _ := table.Column(s.name)
		if col.Kind != s.kind {
			return nil, apperrors.NewAppError(apperrors.ErrTypeSchema,
				fmt.Sprintf("column %q has kind %s, want %s", s.name, col.Kind, s.kind), nil).
				WithContext("column", s.name)
		}
	}

	ts, _ := table.Column(TimestampColumn)
	sid, _ := table.Column(SidColumn)
	eventDate, _ := table.Column(EventDateColumn)
	fiscalQuarter, _ := table.Column(FiscalQuarterColumn)
	fiscalYear, _ := table.Column(FiscalYearColumn)

	fieldColumns := fields.PhysicalColumns()
	out := &Events{
		Fields:     fieldColumns,
		Kinds:      make([]Kind, len(fieldColumns)),
		fieldIndex: make(map[string]int, len(fieldColumns)),
	}
	valueColumns := make([]*Column, len(fieldColumns))
	for i, name := range fieldColumns {
		col, _ := table.Column(name)
		valueColumns[i] = col
		out.Kinds[i] = col.Kind
		out.fieldIndex[name] = i
	}

	for row := 0; row < table.Rows(); row++ {
		if eventDate.IsNull(row) || fiscalQuarter.IsNull(row) || fiscalYear.IsNull(row) ||
			ts.IsNull(row) || sid.IsNull(row) {
			out.Dropped++
			continue
		}

		year, okYear := wholeNumber(fiscalYear.Floats[row])
		quarter, okQuarter := wholeNumber(fiscalQuarter.Floats[row])
		if !okYear || !okQuarter {
			out.Dropped++
			continue
		}
		normalized, err := quarters.Normalize(year, quarter)
		if err != nil {
			out.Dropped++
			continue
		}

		values := make([]Value, len(valueColumns))
		for i, col := range valueColumns {
			values[i] = col.Value(row)
		}

		out.Rows = append(out.Rows, Event{
			Index:         row,
			Asset:         sid.Strings[row],
			Timestamp:     ts.Times[row],
			EventDate:     eventDate.Times[row],
			FiscalYear:    year,
			FiscalQuarter: quarter,
			Quarter:       normalized,
			Values:        values,
		})
	}

	return out, nil
}

// wholeNumber accepts integral values small enough to convert exactly;
// years beyond quarters.MaxYear are rejected later by quarters.Normalize
func wholeNumber(f float64) (int, bool) {
	if math.IsNaN(f) || math.Abs(f) > 1<<31 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
