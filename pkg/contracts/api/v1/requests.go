// Package api contains the request and response contracts of the estimates
// HTTP API. Version v1 represents the current stable API version.
package api

// ColumnRequest asks for one logical field at a quarter offset. A negative
// num_quarters is passed through so the loader can reject it.
type ColumnRequest struct {
	Name        string `json:"name" validate:"required"`
	NumQuarters int    `json:"num_quarters"`
	DType       string `json:"dtype,omitempty" validate:"omitempty,dtype"`
}

// LoadRequest is the body of POST /api/v1/estimates/load
type LoadRequest struct {
	// Selector is next or previous; the server default applies when empty
	Selector string          `json:"selector,omitempty" validate:"omitempty,selector"`
	Columns  []ColumnRequest `json:"columns" validate:"required,min=1,dive"`
	// Dates are YYYY-MM-DD or RFC 3339 and must be strictly increasing
	Dates  []string `json:"dates" validate:"required,min=1,dive,isodate"`
	Assets []string `json:"assets" validate:"required,min=1,unique,dive,assetid"`
	// Mask is dates x assets; omitted means every cell is valid
	Mask [][]bool `json:"mask,omitempty"`
	// AsOf, when set, returns the matrix as known on that date instead of
	// the baseline and its adjustments
	AsOf string `json:"as_of,omitempty" validate:"omitempty,isodate"`
	// Export writes the result under the export directory as well
	Export string `json:"export,omitempty" validate:"omitempty,oneof=csv xlsx"`
}

// ExportQuery selects a streamed download instead of JSON
type ExportQuery struct {
	Format string `json:"format" query:"format" validate:"omitempty,oneof=json csv xlsx"`
}
