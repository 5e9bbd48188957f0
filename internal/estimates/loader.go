package estimates

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sharongu/zipline/internal/adjusted"
	apperrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/events"
)

// Loader serves point-in-time quarterly estimates from a validated event
// table. It holds no mutable state and is safe for concurrent use.
type Loader struct {
	selector Selector
	fields   events.FieldMap
	events   *events.Events
	root     *slog.Logger
	logger   *slog.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger; slog.Default is used otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader validates table against fields once and returns a Loader.
// It fails with *errors.SchemaError when required columns are missing.
func NewLoader(selector Selector, table *events.Table, fields events.FieldMap, opts ...Option) (*Loader, error) {
	if !selector.Valid() {
		return nil, apperrors.NewInvalidParameterError("selector", selector, "must be next or previous")
	}

	l := &Loader{
		selector: selector,
		fields:   fields,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.root = l.logger
	l.logger = l.selectorLogger()

	evs, err := events.Validate(table, fields)
	if err != nil {
		l.logger.Error("event table rejected", slog.String("error", err.Error()))
		return nil, err
	}
	l.events = evs

	l.logger.Info("validated event table",
		slog.Int("rows", table.Rows()),
		slog.Int("kept", len(evs.Rows)),
		slog.Int("dropped", evs.Dropped),
		slog.Int("fields", fields.Len()),
	)
	return l, nil
}

// WithSelector returns a Loader over the same validated events that picks
// quarters with selector instead
func (l *Loader) WithSelector(selector Selector) (*Loader, error) {
	if !selector.Valid() {
		return nil, apperrors.NewInvalidParameterError("selector", selector, "must be next or previous")
	}
	c := *l
	c.selector = selector
	c.logger = c.selectorLogger()
	return &c, nil
}

func (l *Loader) selectorLogger() *slog.Logger {
	return l.root.With(
		slog.String("component", "estimates_loader"),
		slog.String("selector", l.selector.String()),
	)
}

// Selector returns the loader's quarter selector
func (l *Loader) Selector() Selector { return l.selector }

// Fields returns the logical field names the loader can serve, sorted
func (l *Loader) Fields() []string { return l.fields.Logical() }

// Events returns the validated event set
func (l *Loader) Events() *events.Events { return l.events }

// Load computes an adjusted array for every requested column over dates x
// assets. mask may be nil, meaning every cell is valid.
//
// Any negative NumQuarters fails with *errors.InvalidParameterError before
// anything else is inspected.
func (l *Loader) Load(ctx context.Context, columns []Column, dates []time.Time, assets []string, mask adjusted.Mask) (map[Column]*adjusted.Array, error) {
	for _, c := range columns {
		if c.NumQuarters < 0 {
			return nil, apperrors.NewInvalidParameterError("num_quarters", c.NumQuarters,
				fmt.Sprintf("column %s must request a number of quarters >= 0", c.Name))
		}
	}

	if err := validateDates(dates); err != nil {
		return nil, err
	}
	if err := validateAssets(assets); err != nil {
		return nil, err
	}
	if mask == nil {
		mask = adjusted.FullMask(len(dates), len(assets))
	} else if err := validateMask(mask, len(dates), len(assets)); err != nil {
		return nil, err
	}

	extractors := make(map[Column]extractor, len(columns))
	for _, c := range columns {
		ext, err := l.extractorFor(c)
		if err != nil {
			return nil, err
		}
		extractors[c] = ext
	}

	groups := groupByQuarters(columns)
	out := make(map[Column]*adjusted.Array, len(columns))
	if len(groups) == 0 {
		return out, nil
	}

	snap := BuildSnapshot(l.events, dates, assets)

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		requested := SelectQuarters(snap, l.selector, g.numQuarters)
		for _, c := range g.columns {
			arr, err := buildArray(snap, requested, extractors[c], mask)
			if err != nil {
				return nil, fmt.Errorf("building %s: %w", c, err)
			}
			out[c] = arr
		}

		l.logger.DebugContext(ctx, "loaded quarter group",
			slog.Int("num_quarters", g.numQuarters),
			slog.Int("columns", len(g.columns)),
			slog.Int("dates", len(dates)),
			slog.Int("assets", len(assets)),
		)
	}

	return out, nil
}

func (l *Loader) extractorFor(c Column) (extractor, error) {
	if c.DType != adjusted.Float64 && c.DType != adjusted.Datetime {
		return extractor{}, apperrors.NewInvalidParameterError("dtype", c.DType, fmt.Sprintf("column %s has no storage type", c.Name))
	}
	physical, ok := l.fields.Physical(c.Name)
	if !ok {
		return extractor{}, apperrors.NewInvalidParameterError("column", c.Name, "not in the field map")
	}
	field, _ := l.events.FieldIndex(physical)
	return newExtractor(physical, field, c.DType), nil
}

type quarterGroup struct {
	numQuarters int
	columns     []Column
}

// groupByQuarters groups columns by NumQuarters, ascending, dropping
// duplicate columns and keeping first-seen order within a group.
func groupByQuarters(columns []Column) []quarterGroup {
	index := make(map[int]int)
	seen := make(map[Column]struct{}, len(columns))
	var groups []quarterGroup
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		i, ok := index[c.NumQuarters]
		if !ok {
			i = len(groups)
			index[c.NumQuarters] = i
			groups = append(groups, quarterGroup{numQuarters: c.NumQuarters})
		}
		groups[i].columns = append(groups[i].columns, c)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].numQuarters < groups[b].numQuarters })
	return groups
}

func validateDates(dates []time.Time) error {
	if len(dates) == 0 {
		return apperrors.NewInvalidParameterError("dates", 0, "at least one simulation date is required")
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return apperrors.NewInvalidParameterError("dates", dates[i].Format(time.RFC3339),
				fmt.Sprintf("dates must be strictly increasing (position %d)", i))
		}
	}
	return nil
}

func validateAssets(assets []string) error {
	if len(assets) == 0 {
		return apperrors.NewInvalidParameterError("assets", 0, "at least one asset is required")
	}
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if _, dup := seen[a]; dup {
			return apperrors.NewInvalidParameterError("assets", a, "asset ids must be unique")
		}
		seen[a] = struct{}{}
	}
	return nil
}

func validateMask(mask adjusted.Mask, rows, cols int) error {
	if len(mask) != rows {
		return apperrors.NewInvalidParameterError("mask", len(mask), fmt.Sprintf("mask must have %d rows", rows))
	}
	for i, row := range mask {
		if len(row) != cols {
			return apperrors.NewInvalidParameterError("mask", len(row), fmt.Sprintf("mask row %d must have %d columns", i, cols))
		}
	}
	return nil
}
