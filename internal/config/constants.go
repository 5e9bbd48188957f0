package config

import "time"

// Application constants
const (
	AppName    = "estimates"
	AppVersion = "1.0.0"

	DefaultLoadTimeout = 2 * time.Minute
	DefaultRateLimit   = 100 // requests per second
	DefaultBurstSize   = 50

	DefaultDataDir   = "data"
	DefaultExportDir = "data/exports"
	DefaultLogsDir   = "logs"

	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultDateLayout = "2006-01-02"

	APIBasePath     = "/api/v1"
	HealthEndpoint  = "/healthz"
	MetricsEndpoint = "/metrics"
)
