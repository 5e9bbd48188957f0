// Package services holds the business layer between the HTTP handlers and
// the estimates loader.
//
// EstimatesService owns the event table. It reads the configured events
// files through internal/ingest, validates them once per selector and
// answers LoadQuery requests with traced, metered calls to
// estimates.Loader. Results can be written to the export directory.
//
// HealthService reports liveness with runtime statistics and readiness
// based on whether an event table is loaded.
package services
