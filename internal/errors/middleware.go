package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxCapturedBody = 1 << 20
	maxSummaryChars = 500
)

// ErrorMiddleware recovers panics into problem responses and, for every
// response of 400 or above, logs the load query that caused it in summarized
// form. HandleError logs why a request failed; this logs what was asked.
type ErrorMiddleware struct {
	handler *ErrorHandler
	logger  *slog.Logger
}

// NewErrorMiddleware creates an ErrorMiddleware reporting through handler
func NewErrorMiddleware(handler *ErrorHandler, logger *slog.Logger) *ErrorMiddleware {
	return &ErrorMiddleware{
		handler: handler,
		logger:  logger.With(slog.String("component", "error_middleware")),
	}
}

// Handler wraps next
func (m *ErrorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		query := captureBody(r)
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				m.handler.HandlePanic(ww, r, rec)
			}
		}()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status < http.StatusBadRequest {
			return
		}
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if r.URL.RawQuery != "" {
			attrs = append(attrs, slog.String("query", r.URL.RawQuery))
		}
		if len(query) > 0 {
			attrs = append(attrs, slog.String("request_body", summarizeRequestBody(query)))
		}
		m.logger.LogAttrs(r.Context(), level, "failed estimates query", attrs...)
	})
}

// captureBody reads a bounded request body and puts an identical reader back
func captureBody(r *http.Request) []byte {
	if r.Body == nil || r.ContentLength <= 0 || r.ContentLength >= maxCapturedBody {
		return nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

// summarizeRequestBody replaces the bulky lists of a load query (dates,
// assets, mask) by their lengths and truncates what is left.
func summarizeRequestBody(body []byte) string {
	summary := string(body)
	var query map[string]interface{}
	if json.Unmarshal(body, &query) == nil {
		for _, key := range []string{"dates", "assets", "mask"} {
			if list, ok := query[key].([]interface{}); ok {
				query[key] = fmt.Sprintf("[%d items]", len(list))
			}
		}
		if out, err := json.Marshal(query); err == nil {
			summary = string(out)
		}
	}
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars] + "..."
	}
	return summary
}
