// Package estimates loads irregularly released quarterly estimates as a
// point-in-time view: on each simulation date only events whose knowledge
// timestamp is on or before that date are visible.
//
// # Pipeline
//
// A Load call runs, per group of columns sharing a quarter offset:
//
//  1. BuildSnapshot: for every (date, asset, quarter) the latest known event,
//     forward-filled field by field within the same (asset, quarter).
//  2. SelectQuarters: the Next or Previous release per (date, asset), shifted
//     by NumQuarters-1 quarters in the selector's direction.
//  3. buildArray: the baseline holds the history of the quarter requested on
//     the last date; every row where the requested quarter changes carries an
//     overwrite restoring the previous quarter's history for earlier windows.
//
// # Usage
//
//	loader, err := estimates.NewLoader(estimates.Previous, table, fields,
//	    estimates.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	arrays, err := loader.Load(ctx,
//	    []estimates.Column{estimates.FloatColumn("estimate", 1)},
//	    dates, assets, nil)
//
// Each adjusted.Array answers "what was known as of row r" through
// Array.AsOf without materializing one matrix per date.
package estimates
