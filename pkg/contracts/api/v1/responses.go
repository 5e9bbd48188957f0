package api

import "time"

// Cells are JSON-safe: numbers for float64 arrays, RFC 3339 strings for
// datetime arrays and null for missing values.

// AdjustmentResponse is one overwrite: for windows ending before
// EffectiveDate, rows FirstRow..LastRow of Asset read Values.
type AdjustmentResponse struct {
	Row           int           `json:"row"`
	EffectiveDate string        `json:"effective_date"`
	Asset         string        `json:"asset"`
	FirstRow      int           `json:"first_row"`
	LastRow       int           `json:"last_row"`
	Values        []interface{} `json:"values"`
}

// ArrayResponse is one loaded column
type ArrayResponse struct {
	Name        string               `json:"name"`
	NumQuarters int                  `json:"num_quarters"`
	DType       string               `json:"dtype"`
	Baseline    [][]interface{}      `json:"baseline,omitempty"`
	Adjustments []AdjustmentResponse `json:"adjustments,omitempty"`
	View        [][]interface{}      `json:"view,omitempty"`
}

// LoadResponse is the JSON result of a load
type LoadResponse struct {
	Selector   string          `json:"selector"`
	Dates      []string        `json:"dates"`
	Assets     []string        `json:"assets"`
	AsOf       string          `json:"as_of,omitempty"`
	Arrays     []ArrayResponse `json:"arrays"`
	ExportPath string          `json:"export_path,omitempty"`
	DurationMS float64         `json:"duration_ms"`
}

// FieldsResponse lists the fields a load can request
type FieldsResponse struct {
	Fields          []string `json:"fields"`
	DefaultSelector string   `json:"default_selector"`
}

// AssetsResponse lists the asset ids of the loaded table
type AssetsResponse struct {
	Assets []string `json:"assets"`
	Count  int      `json:"count"`
}

// ReloadResponse reports a reload of the events files
type ReloadResponse struct {
	Rows     int       `json:"rows"`
	Kept     int       `json:"kept"`
	Dropped  int       `json:"dropped"`
	LoadedAt time.Time `json:"loaded_at"`
}
