// Package http implements the HTTP handlers of the estimates service. The
// handlers only parse requests, validate them against the v1 contracts and
// shape responses; the work happens in internal/services.
//
// Routes:
//
//	GET  /healthz, /healthz/ready, /healthz/live
//	GET  /metrics
//	GET  /api/v1/version, /api/v1/runtime
//	GET  /api/v1/estimates/fields
//	GET  /api/v1/estimates/assets
//	GET  /api/v1/estimates/status
//	POST /api/v1/estimates/reload
//	POST /api/v1/estimates/load[?format=json|csv|xlsx]
//
// Errors are rendered as RFC 7807 problem details by errors.ErrorHandler.
package http
