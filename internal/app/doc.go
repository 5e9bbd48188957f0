// Package app wires configuration, logging, telemetry, services and the
// HTTP router of the estimates server, and manages its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, config file, ESTIMATES_* environment)
//	2. Initialize the JSON logger and OpenTelemetry providers
//	3. Create the estimates and health services
//	4. Build the chi router and the HTTP server
//	5. Run reads the configured events files and begins serving
//	6. On SIGINT or SIGTERM, shut down the server and flush telemetry
//
// # Routes
//
//	GET  /healthz, /healthz/ready, /healthz/live
//	GET  /metrics
//	GET  /api/v1/version, /api/v1/runtime
//	     /api/v1/estimates/...  (see the transport/http package)
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    slog.Error("Failed to initialize application", slog.String("error", err.Error()))
//	    os.Exit(1)
//	}
//	if err := application.Run(); err != nil {
//	    os.Exit(1)
//	}
package app
