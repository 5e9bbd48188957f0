// Package middleware holds the HTTP middleware of the estimates API:
// request ids, access logging, panic recovery, rate limiting, deadlines,
// query validation and OpenTelemetry instrumentation.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	apierrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/infrastructure"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID tags the request with the client's X-Request-ID or a new UUID.
// The id is stored where chi's GetReqID finds it and, unless a span is
// already active, becomes the trace_id of every log line. Mount it first.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		traceID := id
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			traceID = sc.TraceID().String()
		}
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(infrastructure.WithTraceID(ctx, traceID)))
	})
}

// GetRequestID returns the request id, or the trace id outside a request
func GetRequestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return infrastructure.GetTraceID(ctx)
}

// StructuredLogger writes one access log record per request: debug when it
// starts, then info, or error for 5xx, when it completes
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "access_log"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger.DebugContext(ctx, "request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(ctx, level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// Recoverer reports panics as internal error problems. http.ErrAbortHandler
// is re-raised so net/http can abort the response.
func Recoverer(handler *apierrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				handler.HandlePanic(w, r, rec)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter is one token bucket shared by every client of the estimates
// routes. Rejected requests get 429 with a Retry-After in whole seconds.
type RateLimiter struct {
	bucket  *rate.Limiter
	handler *apierrors.ErrorHandler
	logger  *slog.Logger
}

// NewRateLimiter allows rps requests per second with bursts of burst
func NewRateLimiter(rps float64, burst int, handler *apierrors.ErrorHandler, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		bucket:  rate.NewLimiter(rate.Limit(rps), burst),
		handler: handler,
		logger:  logger.With(slog.String("component", "rate_limiter")),
	}
}

// Handler wraps next
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.bucket.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
		)
		w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
		rl.handler.HandleError(w, r, apierrors.ErrRateLimitExceeded)
	})
}

// retryAfter is the time one token takes to refill, at least a second
func (rl *RateLimiter) retryAfter() int {
	limit := float64(rl.bucket.Limit())
	if limit <= 0 || math.IsInf(limit, 1) {
		return 1
	}
	return max(1, int(math.Ceil(1/limit)))
}

// Timeout gives every request a deadline. Loaders check ctx between column
// groups, and the error handler answers the context error with 504.
func Timeout(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeaders sets the headers of a JSON-only API
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
