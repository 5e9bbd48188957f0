package errors

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorHandler writes every failed request as an RFC 7807 problem. Client
// errors are logged at warn, server errors at error.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates an ErrorHandler. includeStack adds the goroutine
// stack to problems and is meant for development.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError reports err through From; a nil err writes nothing
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	apiErr := From(err)
	level := slog.LevelWarn
	if apiErr.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.String("error_code", apiErr.ErrorCode),
		slog.Int("status", apiErr.StatusCode),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	h.write(w, r, apiErr.Problem(r.URL.Path))
}

// HandlePanic reports a recovered panic as an internal error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("stack", string(debug.Stack())),
	)

	problem := errInternal.Problem(r.URL.Path)
	if h.includeStack {
		problem.Extensions["panic"] = fmt.Sprint(recovered)
	}
	h.write(w, r, problem)
}

// NotFound answers requests for unknown routes
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, New(http.StatusNotFound, "ROUTE_NOT_FOUND",
		"The requested resource was not found").Problem(r.URL.Path))
}

// MethodNotAllowed answers known routes called with the wrong method
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method)).Problem(r.URL.Path))
}

func (h *ErrorHandler) write(w http.ResponseWriter, r *http.Request, problem *ProblemDetails) {
	problem.Extensions["trace_id"] = middleware.GetReqID(r.Context())
	if h.includeStack {
		problem.Extensions["stack"] = string(debug.Stack())
	}
	render.Render(w, r, problem)
}
