package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SchemaError reports an event table that cannot serve the requested columns.
// All column lists are sorted so the message is deterministic.
type SchemaError struct {
	Missing  []string
	Received []string
	Expected []string
}

// NewSchemaError builds a SchemaError from unordered column sets
func NewSchemaError(missing, received, expected []string) *SchemaError {
	return &SchemaError{
		Missing:  sortedCopy(missing),
		Received: sortedCopy(received),
		Expected: sortedCopy(expected),
	}
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf(
		"estimates loader missing required columns [%s]\nGot Columns: [%s]\nExpected Columns: [%s]",
		strings.Join(e.Missing, ", "),
		strings.Join(e.Received, ", "),
		strings.Join(e.Expected, ", "),
	)
}

// Unwrap exposes the generic AppError view so callers can branch on ErrorType
func (e *SchemaError) Unwrap() error {
	return NewAppError(ErrTypeSchema, "event table schema mismatch", nil).
		WithContext("missing", e.Missing)
}

// APIError reports the three column lists as details
func (e *SchemaError) APIError() *APIError {
	return NewWithDetails(ErrTypeSchema.Status(), ErrTypeSchema.Code(), e.Error(), map[string][]string{
		"missing_columns":  e.Missing,
		"received_columns": e.Received,
		"expected_columns": e.Expected,
	})
}

// InvalidParameterError reports a query parameter outside its domain
type InvalidParameterError struct {
	Parameter string
	Value     interface{}
	Message   string
}

// NewInvalidParameterError creates an InvalidParameterError
func NewInvalidParameterError(parameter string, value interface{}, message string) *InvalidParameterError {
	return &InvalidParameterError{Parameter: parameter, Value: value, Message: message}
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Parameter, e.Value, e.Message)
}

// Unwrap exposes the generic AppError view
func (e *InvalidParameterError) Unwrap() error {
	return NewAppError(ErrTypeInvalidParameter, e.Message, nil).
		WithContext("parameter", e.Parameter)
}

// APIError names the parameter and echoes the rejected value
func (e *InvalidParameterError) APIError() *APIError {
	return NewWithDetails(ErrTypeInvalidParameter.Status(), ErrTypeInvalidParameter.Code(), e.Message, map[string]interface{}{
		"parameter": e.Parameter,
		"value":     fmt.Sprint(e.Value),
	})
}

// IsSchemaError reports whether err is or wraps a SchemaError
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsInvalidParameter reports whether err is or wraps an InvalidParameterError
func IsInvalidParameter(err error) bool {
	var ipe *InvalidParameterError
	return errors.As(err, &ipe)
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or ""
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
