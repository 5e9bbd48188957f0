package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sharongu/zipline/internal/config"
)

type traceIDKey struct{}

// process-wide logger installed by InitializeLogger
var process struct {
	once   sync.Once
	mu     sync.Mutex
	logger *slog.Logger
	file   *os.File
}

// InitializeLogger builds the process logger from cfg, writing to stdout
// and/or the log file, and installs it as slog's default. Later calls
// return the first logger unchanged.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var err error
	process.once.Do(func() {
		var logger *slog.Logger
		var file *os.File
		if logger, file, err = NewLogger(cfg, os.Stdout); err != nil {
			return
		}
		process.mu.Lock()
		process.logger, process.file = logger, file
		process.mu.Unlock()
		slog.SetDefault(logger)
	})
	return process.logger, err
}

// NewLogger builds a logger for cfg. Output "console" writes to stdout,
// "file" to cfg.FilePath and "both" to each; Format "text" selects slog's
// text handler over JSON. Records logged with a context carrying a trace id
// get a trace_id attribute. The returned file, if any, is the caller's to
// close.
func NewLogger(cfg config.LoggingConfig, stdout io.Writer) (*slog.Logger, *os.File, error) {
	var (
		out  = stdout
		file *os.File
	)
	if output := strings.ToLower(cfg.Output); output == "file" || output == "both" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		file, out = f, f
		if output == "both" {
			out = io.MultiWriter(stdout, f)
		}
	}

	opts := &slog.HandlerOptions{Level: logLevel(cfg.Level), AddSource: cfg.Development}
	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(traceHandler{h}), file, nil
}

// logLevel maps a configured level name onto slog; unknown names mean info
func logLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// traceHandler adds the context's trace id to every record
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetTraceID(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}

// WithTraceID returns ctx carrying id as its trace id
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

// GetTraceID returns the trace id set by WithTraceID or, failing that, the
// id of the active OpenTelemetry span
func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return TraceIDFromContext(ctx)
}

// EnsureTraceID gives ctx a fresh UUID trace id unless it has one. CLI runs
// use it so every record of one run shares an id.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, uuid.NewString())
}

// WithComponent tags logger's records with component
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// CloseLogFile closes the process log file, if InitializeLogger opened one
func CloseLogFile() error {
	process.mu.Lock()
	defer process.mu.Unlock()
	if process.file == nil {
		return nil
	}
	err := process.file.Close()
	process.file = nil
	return err
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
