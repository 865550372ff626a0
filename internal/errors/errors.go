package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeTransport      ErrorType = "transport"
	ErrTypeParse          ErrorType = "parse"
	ErrTypePlanGeneration ErrorType = "plan_generation"
	ErrTypePlanValidation ErrorType = "plan_validation"
	ErrTypeConfig         ErrorType = "config"
	ErrTypeAuth           ErrorType = "auth"
	ErrTypeValidation     ErrorType = "validation"
	ErrTypeStorage        ErrorType = "storage"
	ErrTypeInternal       ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions.
//
// Value, Allowed and Raw carry the diagnostic context of pipeline failures:
// the offending value and the permitted set for validation errors, and the
// raw oracle output for generation errors.
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string

	StatusCode int
	Value      string
	Allowed    []string
	Raw        string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// As returns the first structured error in err's chain
func As(err error) (*Error, bool) {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr, true
	}

	return nil, false
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewTransportError reports a non-2xx response from a remote endpoint
func NewTransportError(endpoint string, statusCode int, body string) *Error {
	err := Newf(ErrTypeTransport, "%s returned status %d: %s", endpoint, statusCode, strings.TrimSpace(body))
	err.StatusCode = statusCode

	if statusCode == 401 || statusCode == 403 {
		err.WithSuggestion("Check the client credentials and the application user's security role")
	}

	return err
}

// NewPlanGenerationError reports oracle output that holds no JSON object.
// The raw output is kept verbatim for diagnosis.
func NewPlanGenerationError(raw string) *Error {
	err := New(ErrTypePlanGeneration, "oracle did not return a valid JSON query plan")
	err.Raw = raw

	return err
}

// NewPlanValidationError reports a plan field whose value is outside the permitted set
func NewPlanValidationError(field, value string, allowed []string) *Error {
	err := Newf(ErrTypePlanValidation, "unknown or forbidden %s in plan: %q (allowed: %s)",
		field, value, strings.Join(allowed, ", "))
	err.Value = value
	err.Allowed = append([]string(nil), allowed...)

	return err
}
