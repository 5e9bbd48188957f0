package estimates

import (
	"fmt"

	"github.com/sharongu/zipline/internal/adjusted"
)

// Column is one requested output: a logical field, the quarter offset it is
// loaded at, and its storage type. Column is comparable and keys the result
// of Loader.Load.
type Column struct {
	Name        string         `json:"name"`
	NumQuarters int            `json:"num_quarters"`
	DType       adjusted.DType `json:"dtype"`
}

// String renders the column as name[n]
func (c Column) String() string {
	return fmt.Sprintf("%s[%d]", c.Name, c.NumQuarters)
}

// FloatColumn is shorthand for a Float64 column
func FloatColumn(name string, numQuarters int) Column {
	return Column{Name: name, NumQuarters: numQuarters, DType: adjusted.Float64}
}

// DatetimeColumn is shorthand for a Datetime column
func DatetimeColumn(name string, numQuarters int) Column {
	return Column{Name: name, NumQuarters: numQuarters, DType: adjusted.Datetime}
}
