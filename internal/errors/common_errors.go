package errors

import (
	"net/http"
	"strings"
)

// ErrorType classifies an AppError. It decides the HTTP status and the
// error code the error is reported with.
type ErrorType string

const (
	ErrTypeSchema           ErrorType = "SCHEMA"
	ErrTypeInvalidParameter ErrorType = "INVALID_PARAMETER"
	ErrTypeParsing          ErrorType = "PARSING"
	ErrTypeStorage          ErrorType = "STORAGE"
	ErrTypeValidation       ErrorType = "VALIDATION"
	ErrTypeNotFound         ErrorType = "NOT_FOUND"
	ErrTypeConfig           ErrorType = "CONFIG"
)

var typeResponses = map[ErrorType]struct {
	status int
	code   string
}{
	ErrTypeSchema:           {http.StatusUnprocessableEntity, "SCHEMA_MISMATCH"},
	ErrTypeInvalidParameter: {http.StatusBadRequest, "INVALID_PARAMETER"},
	ErrTypeParsing:          {http.StatusUnprocessableEntity, "UNREADABLE_EVENTS"},
	ErrTypeStorage:          {http.StatusInternalServerError, "STORAGE_FAILURE"},
	ErrTypeValidation:       {http.StatusBadRequest, "VALIDATION_FAILED"},
	ErrTypeNotFound:         {http.StatusNotFound, "NOT_FOUND"},
	ErrTypeConfig:           {http.StatusInternalServerError, "CONFIG_ERROR"},
}

// Status is the HTTP status errors of this type are reported with
func (t ErrorType) Status() int {
	if resp, ok := typeResponses[t]; ok {
		return resp.status
	}
	return http.StatusInternalServerError
}

// Code is the API error code of this type
func (t ErrorType) Code() string {
	if resp, ok := typeResponses[t]; ok {
		return resp.code
	}
	return "INTERNAL_SERVER_ERROR"
}

// AppError is raised anywhere in the estimates pipeline: ingest, table
// validation, loading and export. Context holds the offending inputs (file,
// line, column, parameter) and is reported as the error details.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString("[" + string(e.Type) + "] " + e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithContext records one detail of the failure and returns e
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// APIError reports e to API clients. Server-side failures keep their cause
// and context out of the response.
func (e *AppError) APIError() *APIError {
	status := e.Type.Status()
	if status >= http.StatusInternalServerError {
		return New(status, e.Type.Code(), "The estimates service could not complete the request")
	}

	message := e.Message
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	apiErr := New(status, e.Type.Code(), message)
	if len(e.Context) > 0 {
		apiErr.Details = e.Context
	}
	return apiErr
}

// NewAppError creates an AppError of the given type
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Cause: cause}
}

// NewParsingError reports an events file or stream that cannot be decoded
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError reports a file system failure while reading events or
// writing exports
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError reports input rejected before any work started
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError reports a missing resource, e.g. no event table loaded yet
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, resource+" not found", nil)
}

// NewConfigError reports an invalid configuration value
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
