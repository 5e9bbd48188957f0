package events

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Structural columns every estimates table carries
const (
	TimestampColumn     = "timestamp"
	SidColumn           = "sid"
	EventDateColumn     = "event_date"
	FiscalQuarterColumn = "fiscal_quarter"
	FiscalYearColumn    = "fiscal_year"
)

// Column is one named, typed column of a Table. Exactly one of the slices
// is populated, matching Kind.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Times   []time.Time
	Strings []string
}

// Len returns the number of cells in the column
func (c *Column) Len() int {
	switch c.Kind {
	case KindFloat:
		return len(c.Floats)
	case KindTime:
		return len(c.Times)
	default:
		return len(c.Strings)
	}
}

// Value returns row i as a field Value. String cells are not field values
// and read as null floats.
func (c *Column) Value(i int) Value {
	switch c.Kind {
	case KindFloat:
		return Float(c.Floats[i])
	case KindTime:
		return Time(c.Times[i])
	default:
		return Null(KindFloat)
	}
}

// IsNull reports whether row i holds no data
func (c *Column) IsNull(i int) bool {
	switch c.Kind {
	case KindFloat:
		return math.IsNaN(c.Floats[i])
	case KindTime:
		return c.Times[i].IsZero()
	default:
		return c.Strings[i] == ""
	}
}

// Table is a column-oriented raw event table. All columns have the same
// number of rows.
type Table struct {
	columns map[string]*Column
	order   []string
	rows    int
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{columns: make(map[string]*Column)}
}

// AddFloatColumn appends a numeric column; NaN marks a null cell
func (t *Table) AddFloatColumn(name string, values []float64) error {
	return t.add(&Column{Name: name, Kind: KindFloat, Floats: values})
}

// AddTimeColumn appends a timestamp column; the zero time marks a null cell
func (t *Table) AddTimeColumn(name string, values []time.Time) error {
	return t.add(&Column{Name: name, Kind: KindTime, Times: values})
}

// AddStringColumn appends a text column; the empty string marks a null cell
func (t *Table) AddStringColumn(name string, values []string) error {
	return t.add(&Column{Name: name, Kind: KindString, Strings: values})
}

func (t *Table) add(col *Column) error {
	if col.Name == "" {
		return fmt.Errorf("column name must not be empty")
	}
	if _, exists := t.columns[col.Name]; exists {
		return fmt.Errorf("duplicate column %q", col.Name)
	}
	if len(t.order) > 0 && col.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", col.Name, col.Len(), t.rows)
	}
	t.rows = col.Len()
	t.columns[col.Name] = col
	t.order = append(t.order, col.Name)
	return nil
}

// Rows returns the number of rows
func (t *Table) Rows() int { return t.rows }

// Column returns the named column
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.columns[name]
	return c, ok
}

// ColumnNames returns column names in insertion order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}

// FieldMap maps logical field names to physical table columns. It is
// immutable once built.
type FieldMap struct {
	physical map[string]string
}

// NewFieldMap copies m into a FieldMap
func NewFieldMap(m map[string]string) FieldMap {
	physical := make(map[string]string, len(m))
	for logical, column := range m {
		physical[logical] = column
	}
	return FieldMap{physical: physical}
}

// Physical returns the table column backing a logical field
func (f FieldMap) Physical(logical string) (string, bool) {
	column, ok := f.physical[logical]
	return column, ok
}

// Logical returns the logical field names in sorted order
func (f FieldMap) Logical() []string {
	names := make([]string, 0, len(f.physical))
	for logical := range f.physical {
		names = append(names, logical)
	}
	sort.Strings(names)
	return names
}

// PhysicalColumns returns the distinct physical columns in sorted order
func (f FieldMap) PhysicalColumns() []string {
	seen := make(map[string]struct{}, len(f.physical))
	columns := make([]string, 0, len(f.physical))
	for _, column := range f.physical {
		if _, ok := seen[column]; ok {
			continue
		}
		seen[column] = struct{}{}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// Len returns the number of logical fields
func (f FieldMap) Len() int { return len(f.physical) }
