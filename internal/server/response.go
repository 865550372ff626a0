package server

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kyleking/dataverse-agent/internal/errors"
)

// APIError is the body of every error response
type APIError struct {
	Message     string   `json:"message"`
	Code        string   `json:"code,omitempty"`
	Value       string   `json:"value,omitempty"`
	Allowed     []string `json:"allowed,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ErrorEnvelope wraps APIError as {"error": {...}}
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes an error envelope
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	apiErr := APIError{Message: msg, Code: code}

	if structErr, ok := errors.As(err); ok {
		apiErr.Value = structErr.Value
		apiErr.Allowed = structErr.Allowed
		apiErr.Suggestions = structErr.Suggestions
	}

	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: apiErr})
}

func respondPipelineError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	_ = c.Error(err)
	RespondError(c, status, code, err)
}

// StatusFor maps a pipeline error to an HTTP status and error code
func StatusFor(err error) (int, string) {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case stderrors.Is(err, context.Canceled):
		return 499, "canceled"
	}

	errType := errors.GetType(err)

	switch errType {
	case errors.ErrTypeValidation:
		return http.StatusBadRequest, string(errType)
	case errors.ErrTypePlanValidation:
		return http.StatusUnprocessableEntity, string(errType)
	case errors.ErrTypePlanGeneration, errors.ErrTypeParse, errors.ErrTypeTransport, errors.ErrTypeAuth:
		return http.StatusBadGateway, string(errType)
	default:
		return http.StatusInternalServerError, string(errType)
	}
}
