// Package testutil captures slog output so tests can assert on what the
// estimates pipeline logged.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogRecord is one captured record with its attributes flattened by key
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// BufferedSlogHandler is an slog.Handler that keeps every record in memory.
// Handlers derived through WithAttrs append to the same buffer.
type BufferedSlogHandler struct {
	buf   *buffer
	attrs []slog.Attr
	t     *testing.T
}

type buffer struct {
	mu      sync.Mutex
	records []LogRecord
}

// NewTestLogger returns a logger writing into a fresh BufferedSlogHandler.
// Records are echoed to t's log.
func NewTestLogger(t *testing.T) (*slog.Logger, *BufferedSlogHandler) {
	h := &BufferedSlogHandler{buf: &buffer{}, t: t}
	return slog.New(h), h
}

func (h *BufferedSlogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *BufferedSlogHandler) Handle(_ context.Context, r slog.Record) error {
	rec := LogRecord{Level: r.Level, Message: r.Message, Attrs: make(map[string]any, len(h.attrs)+r.NumAttrs())}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.Any()
		return true
	})

	h.buf.mu.Lock()
	h.buf.records = append(h.buf.records, rec)
	h.buf.mu.Unlock()

	if h.t != nil {
		h.t.Logf("[%s] %s %v", rec.Level, rec.Message, rec.Attrs)
	}
	return nil
}

func (h *BufferedSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &BufferedSlogHandler{buf: h.buf, attrs: merged, t: h.t}
}

// WithGroup flattens groups; assertions use leaf keys
func (h *BufferedSlogHandler) WithGroup(string) slog.Handler { return h }

func (h *BufferedSlogHandler) filter(keep func(LogRecord) bool) []LogRecord {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	var out []LogRecord
	for _, r := range h.buf.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Count is the number of records captured so far
func (h *BufferedSlogHandler) Count() int {
	return len(h.filter(func(LogRecord) bool { return true }))
}

// GetRecordsByLevel returns the records logged at exactly level
func (h *BufferedSlogHandler) GetRecordsByLevel(level slog.Level) []LogRecord {
	return h.filter(func(r LogRecord) bool { return r.Level == level })
}

// Messages returns the records whose message is exactly msg
func (h *BufferedSlogHandler) Messages(msg string) []LogRecord {
	return h.filter(func(r LogRecord) bool { return r.Message == msg })
}

// ContainsMessage reports whether any message contains substr
func (h *BufferedSlogHandler) ContainsMessage(substr string) bool {
	return len(h.filter(func(r LogRecord) bool { return strings.Contains(r.Message, substr) })) > 0
}

// ContainsAttr reports whether any record carries key with value. Integers
// logged through slog.Int are captured as int64.
func (h *BufferedSlogHandler) ContainsAttr(key string, value any) bool {
	return len(h.filter(func(r LogRecord) bool {
		v, ok := r.Attrs[key]
		return ok && v == value
	})) > 0
}

// AssertLogContains fails t unless a record at level has a message
// containing substr
func AssertLogContains(t *testing.T, h *BufferedSlogHandler, level slog.Level, substr string) {
	t.Helper()
	records := h.GetRecordsByLevel(level)
	for _, r := range records {
		if strings.Contains(r.Message, substr) {
			return
		}
	}
	t.Errorf("no %s record containing %q among %d records at that level", level, substr, len(records))
}

// AssertLogAttr fails t unless some record carries key=value
func AssertLogAttr(t *testing.T, h *BufferedSlogHandler, key string, value any) {
	t.Helper()
	if !h.ContainsAttr(key, value) {
		t.Errorf("no record with %s=%v", key, value)
	}
}
