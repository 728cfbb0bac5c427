package respond

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-backend/internal/shared/apperr"
	"portfolio-backend/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if adminID := c.GetString("adminId"); adminID != "" {
		fields["admin_id"] = adminID
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FromError maps a service error onto the standardized error response.
func FromError(c *gin.Context, err error) {
	status, code, message := Classify(err)
	Error(c, status, code, message, nil)
}

// Classify returns the HTTP status, error code and client-safe message for err.
func Classify(err error) (int, string, string) {
	var (
		validationErr *apperr.ValidationError
		notFoundErr   *apperr.NotFoundError
		sectionErr    *apperr.SectionNotFoundError
	)
	switch {
	case err == nil:
		return http.StatusOK, "", ""
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "validation_error", validationErr.Error()
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "not_found", notFoundErr.Error()
	case errors.As(err, &sectionErr):
		return http.StatusUnprocessableEntity, "section_not_found", sectionErr.Error()
	case errors.Is(err, apperr.ErrEmptyRewrite), errors.Is(err, apperr.ErrParse):
		return http.StatusBadGateway, "generation_invalid", "Generated content was unusable"
	case errors.Is(err, apperr.ErrProviderFailure):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "provider_timeout", "Generation provider timed out"
		}
		return http.StatusBadGateway, "provider_error", "Generation provider failed"
	case errors.Is(err, context.Canceled):
		return 499, "canceled", "Request canceled"
	default:
		return http.StatusInternalServerError, "internal_error", "Unexpected server error"
	}
}
