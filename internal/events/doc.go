// Package events models the raw quarterly estimates table and validates it
// against the fields a loader is asked to serve.
//
// A Table is column-oriented. Besides the field columns it must carry five
// structural columns:
//
//   - timestamp: when the row became known (time)
//   - sid: asset identifier (string)
//   - event_date: the release date the estimate pertains to (time)
//   - fiscal_year, fiscal_quarter: the fiscal period (float, whole numbers)
//
// Validate returns an Events set holding only rows that can be placed on
// both the knowledge timeline and the fiscal quarter timeline.
package events
