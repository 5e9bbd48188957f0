package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. ESTIMATES_SERVER_PORT
const EnvPrefix = "ESTIMATES"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Data      DataConfig      `yaml:"data" envconfig:"DATA"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// LoadTimeout bounds a single estimates load request
	LoadTimeout time.Duration `yaml:"load_timeout" envconfig:"LOAD_TIMEOUT"`
}

// SecurityConfig contains request limiting configuration
type SecurityConfig struct {
	MaxBodyBytes int64           `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// TelemetryConfig controls OpenTelemetry tracing and Prometheus metrics
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	ServiceVersion string `yaml:"service_version" envconfig:"SERVICE_VERSION"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceStdout    bool   `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// PathsConfig contains file system locations, relative to BaseDir unless absolute
type PathsConfig struct {
	BaseDir   string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ExportDir string `yaml:"export_dir" envconfig:"EXPORT_DIR"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// DataConfig describes the estimates source and how to read it
type DataConfig struct {
	// EventsFiles are CSV or XLSX files, concatenated in order
	EventsFiles []string `yaml:"events_files" envconfig:"EVENTS_FILES"`
	// Fields maps logical field names to physical columns
	Fields map[string]string `yaml:"fields" envconfig:"FIELDS"`
	// DatetimeColumns are parsed as timestamps in addition to the
	// timestamp and event_date columns
	DatetimeColumns []string `yaml:"datetime_columns" envconfig:"DATETIME_COLUMNS"`
	Selector        string   `yaml:"selector" envconfig:"SELECTOR"`
	DateLayout      string   `yaml:"date_layout" envconfig:"DATE_LAYOUT"`
	SheetName       string   `yaml:"sheet_name" envconfig:"SHEET_NAME"`
}

// Load builds the configuration from defaults, then the config file (if
// any), then ESTIMATES_* environment variables, each layer overriding the
// previous one.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file; an empty path skips the file
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file
// keep their current values
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate reports every invalid setting at once. Unknown log formats and
// outputs fall back to json and console instead of failing.
func (c *Config) validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "server port %d out of range", c.Server.Port)
	check(c.Server.ReadTimeout > 0, "server read_timeout must be positive")
	check(c.Server.WriteTimeout > 0, "server write_timeout must be positive")
	check(c.Server.LoadTimeout > 0, "server load_timeout must be positive")
	check(!c.Security.RateLimit.Enabled || c.Security.RateLimit.RPS > 0, "rate_limit rps must be positive when enabled")

	selector := strings.ToLower(strings.TrimSpace(c.Data.Selector))
	check(selector == "next" || selector == "previous" || selector == "prev",
		"invalid selector %q: want next or previous", c.Data.Selector)
	for logical, physical := range c.Data.Fields {
		check(logical != "" && physical != "", "field map entries must be non-empty, got %q -> %q", logical, physical)
	}
	sample := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	parsed, err := time.Parse(c.Data.DateLayout, sample.Format(c.Data.DateLayout))
	check(err == nil && parsed.Equal(sample), "date_layout %q does not round-trip a calendar date", c.Data.DateLayout)

	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		c.Logging.Format = DefaultLogFormat
	}
	if o := strings.ToLower(c.Logging.Output); o != "console" && o != "file" && o != "both" {
		c.Logging.Output = "console"
	}

	return errors.Join(errs...)
}

// getConfigFilePath returns ESTIMATES_CONFIG or the first config file found
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			LoadTimeout:     DefaultLoadTimeout,
		},
		Security: SecurityConfig{
			MaxBodyBytes: 10 << 20,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "console",
			FilePath: "logs/estimates.log",
		},
		Telemetry: TelemetryConfig{
			Enabled:        true,
			ServiceName:    AppName,
			ServiceVersion: AppVersion,
			Environment:    "development",
			MetricsEnabled: true,
		},
		Paths: PathsConfig{
			DataDir:   DefaultDataDir,
			ExportDir: DefaultExportDir,
			LogsDir:   DefaultLogsDir,
		},
		Data: DataConfig{
			Fields:     map[string]string{},
			Selector:   "next",
			DateLayout: DefaultDateLayout,
		},
	}
}
