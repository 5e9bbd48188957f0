package ingest

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/events"
)

// kindOf decides a column's kind from its header
func (r *Reader) kindOf(name string) events.Kind {
	switch name {
	case events.SidColumn:
		return events.KindString
	case events.TimestampColumn, events.EventDateColumn:
		return events.KindTime
	}
	for _, dt := range r.opts.DatetimeColumns {
		if dt == name {
			return events.KindTime
		}
	}
	return events.KindFloat
}

// build types the cells of every raw table and concatenates them
func (r *Reader) build(raws []*rawTable) (*events.Table, error) {
	header := raws[0].header
	if err := checkHeader(raws[0]); err != nil {
		return nil, err
	}
	for _, raw := range raws[1:] {
		if err := checkHeader(raw); err != nil {
			return nil, err
		}
		if !sameColumns(header, raw.header) {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("%s: columns %v differ from %s columns %v", raw.source, sorted(raw.header), raws[0].source, sorted(header)), nil)
		}
	}

	total := 0
	for _, raw := range raws {
		total += len(raw.rows)
	}

	table := events.NewTable()
	for _, name := range header {
		kind := r.kindOf(name)
		var (
			floats []float64
			times  []time.Time
			strs   []string
			addErr error
		)
		switch kind {
		case events.KindString:
			strs = make([]string, 0, total)
		case events.KindTime:
			times = make([]time.Time, 0, total)
		default:
			floats = make([]float64, 0, total)
		}

		for _, raw := range raws {
			col := indexOf(raw.header, name)
			for i, row := range raw.rows {
				cell := ""
				if col < len(row) {
					cell = strings.TrimSpace(row[col])
				}
				switch kind {
				case events.KindString:
					strs = append(strs, cell)
				case events.KindTime:
					t, err := r.parseTime(cell)
					if err != nil {
						return nil, cellError(raw, i, name, cell, err)
					}
					times = append(times, t)
				default:
					f, err := parseFloat(cell)
					if err != nil {
						return nil, cellError(raw, i, name, cell, err)
					}
					floats = append(floats, f)
				}
			}
		}

		switch kind {
		case events.KindString:
			addErr = table.AddStringColumn(name, strs)
		case events.KindTime:
			addErr = table.AddTimeColumn(name, times)
		default:
			addErr = table.AddFloatColumn(name, floats)
		}
		if addErr != nil {
			return nil, addErr
		}
	}
	return table, nil
}

// parseTime reads a blank cell as the zero time (null), then tries the
// configured layout, RFC 3339, a space separated timestamp and finally an
// Excel serial date.
func (r *Reader) parseTime(cell string) (time.Time, error) {
	if cell == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{r.opts.DateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(cell, 64); err == nil {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("not a date in layout %s or RFC 3339", r.opts.DateLayout)
}

// parseFloat reads blank and NaN-like cells as NaN (null)
func parseFloat(cell string) (float64, error) {
	switch strings.ToLower(cell) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

func cellError(raw *rawTable, row int, column, cell string, cause error) error {
	// +2: one for the header, one for 1-based line numbers
	return apperrors.NewParsingError(fmt.Sprintf("%s: invalid %s value %q", raw.source, column, cell), cause).
		WithContext("line", row+2).
		WithContext("column", column)
}

func checkHeader(raw *rawTable) error {
	seen := make(map[string]struct{}, len(raw.header))
	for _, h := range raw.header {
		if h == "" {
			return apperrors.NewParsingError(fmt.Sprintf("%s: blank column header", raw.source), nil)
		}
		if _, dup := seen[h]; dup {
			return apperrors.NewParsingError(fmt.Sprintf("%s: duplicate column %q", raw.source, h), nil)
		}
		seen[h] = struct{}{}
	}
	return nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, name := range a {
		if indexOf(b, name) < 0 {
			return false
		}
	}
	return true
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
