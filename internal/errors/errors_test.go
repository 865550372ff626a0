package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrTypeValidation, "test error message")

	assert.Equal(t, ErrTypeValidation, err.Type)
	assert.Equal(t, "test error message", err.Message)
	assert.NoError(t, err.Cause)
}

func TestNewf(t *testing.T) {
	err := Newf(ErrTypeParse, "failed to parse %s", "metadata")

	assert.Equal(t, ErrTypeParse, err.Type)
	assert.Equal(t, "failed to parse metadata", err.Message)
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(originalErr, ErrTypeTransport, "network operation failed")

	assert.Equal(t, ErrTypeTransport, wrappedErr.Type)
	assert.Equal(t, "network operation failed", wrappedErr.Message)
	assert.Equal(t, originalErr, wrappedErr.Cause)
}

func TestWrapf(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrapf(
		originalErr,
		ErrTypeTransport,
		"failed to connect to %s:%d",
		"localhost",
		8080,
	)

	assert.Equal(t, ErrTypeTransport, wrappedErr.Type)
	assert.Equal(t, "failed to connect to localhost:8080", wrappedErr.Message)
	assert.Equal(t, originalErr, wrappedErr.Cause)
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrTypeValidation,
				Message: "invalid input",
			},
			expected: "validation: invalid input",
		},
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrTypeParse,
				Message: "metadata parse failed",
				Cause:   errors.New("unexpected EOF"),
			},
			expected: "parse: metadata parse failed (caused by: unexpected EOF)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(originalErr, ErrTypeTransport, "wrapped error")

	assert.Equal(t, originalErr, wrappedErr.Unwrap())
}

func TestIsType(t *testing.T) {
	structErr := New(ErrTypePlanValidation, "validation error")
	regularErr := errors.New("regular error")

	assert.True(t, IsType(structErr, ErrTypePlanValidation))
	assert.False(t, IsType(structErr, ErrTypeParse))
	assert.False(t, IsType(regularErr, ErrTypePlanValidation))

	// Wrapped by fmt.Errorf still resolves
	assert.True(t, IsType(fmt.Errorf("outer: %w", structErr), ErrTypePlanValidation))
}

func TestGetType(t *testing.T) {
	structErr := New(ErrTypeTransport, "API error")
	regularErr := errors.New("regular error")

	assert.Equal(t, ErrTypeTransport, GetType(structErr))
	assert.Equal(t, ErrTypeInternal, GetType(regularErr))
}

func TestAs(t *testing.T) {
	structErr := NewPlanGenerationError("not json")

	got, ok := As(fmt.Errorf("plan: %w", structErr))
	require.True(t, ok)
	assert.Equal(t, "not json", got.Raw)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("invalid value", "log_level")

	assert.Equal(t, ErrTypeConfig, err.Type)
	assert.Contains(t, err.Message, "invalid value")
	assert.Contains(t, err.Message, "log_level")
	assert.Len(t, err.Suggestions, 2)
}

func TestNewTransportError(t *testing.T) {
	err := NewTransportError("dataverse", 404, "  not found\n")

	assert.Equal(t, ErrTypeTransport, err.Type)
	assert.Equal(t, 404, err.StatusCode)
	assert.Equal(t, "transport: dataverse returned status 404: not found", err.Error())
	assert.Empty(t, err.Suggestions)

	authErr := NewTransportError("dataverse", 401, "")
	assert.Len(t, authErr.Suggestions, 1)
}

func TestNewPlanValidationError(t *testing.T) {
	allowed := []string{"crca6_accounts", "crca6_tickets"}
	err := NewPlanValidationError("table", "accounts", allowed)

	assert.Equal(t, ErrTypePlanValidation, err.Type)
	assert.Equal(t, "accounts", err.Value)
	assert.Equal(t, allowed, err.Allowed)
	assert.Contains(t, err.Error(), `"accounts"`)
	assert.Contains(t, err.Error(), "crca6_accounts, crca6_tickets")

	// The allowed slice is copied
	allowed[0] = "mutated"
	assert.Equal(t, "crca6_accounts", err.Allowed[0])
}
