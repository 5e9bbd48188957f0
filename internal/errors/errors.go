package errors

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// APIError is what a client sees of a failed request: a status, a stable
// error code and a message. Details carry per-error data such as the
// rejected fields or the missing columns.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render sets the response status for go-chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates an APIError
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

// NewWithDetails creates an APIError carrying details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	apiErr := New(statusCode, errorCode, message)
	apiErr.Details = details
	return apiErr
}

var (
	ErrFieldNotFound     = New(http.StatusNotFound, "FIELD_NOT_FOUND", "Estimate field not found")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	errTimeout  = New(http.StatusGatewayTimeout, "TIMEOUT", "The request took too long to process and was cancelled")
	errInternal = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred while processing your request")
)

// apiErrorSource is implemented by the domain errors that know how they are
// reported: AppError, SchemaError and InvalidParameterError
type apiErrorSource interface {
	APIError() *APIError
}

// From maps any error onto the APIError it is reported as. The first
// APIError or reporting domain error in the chain wins; anything else is an
// internal error.
func From(err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errTimeout
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var src apiErrorSource
	if errors.As(err, &src) {
		return src.APIError()
	}
	return errInternal
}

// ValidationError is one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors lists every rejected field of a request
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// NewValidationErrors reports every rejected field at once
func NewValidationErrors(fields []ValidationError) *APIError {
	return NewWithDetails(ErrTypeValidation.Status(), ErrTypeValidation.Code(), "Request validation failed", ValidationErrors{Errors: fields})
}

// ErrValidation reports a single rejected field
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(ErrTypeValidation.Status(), ErrTypeValidation.Code(), "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}

// InvalidRequestWithError reports a body that could not be decoded
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}
