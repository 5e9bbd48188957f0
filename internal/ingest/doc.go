// Package ingest reads estimates event files into an events.Table.
//
// CSV and XLSX sources are supported. The first row is the header and
// decides each column's kind:
//
//   - timestamp, event_date and any configured datetime column: times
//   - sid: text
//   - everything else: numbers
//
// Blank cells are nulls. Several files are read concurrently and
// concatenated in the order given; they must share the same header set.
package ingest
