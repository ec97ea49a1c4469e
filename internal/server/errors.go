package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nexus360/internal/apperror"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = apperror.Auth("unauthorized")
	ErrForbidden      = apperror.Forbidden("forbidden")
	ErrNotFound       = apperror.NotFound("not_found")
	ErrInvalidRequest = apperror.Validation("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError turns the error taxonomy into a status code and envelope. Only
// the classified code reaches the client.
func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    string(apperror.KindValidation),
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound, errorPayload{Type: string(apperror.KindNotFound), Message: "not found"}
	}

	kind, ok := apperror.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	code := apperror.CodeOf(err)
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    string(kind),
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case apperror.KindConflict:
		return http.StatusConflict, errorPayload{Type: string(kind), Message: code}
	case apperror.KindAuth:
		return http.StatusUnauthorized, errorPayload{Type: string(kind), Message: code}
	case apperror.KindForbidden:
		return http.StatusForbidden, errorPayload{Type: string(kind), Message: code}
	case apperror.KindState:
		return http.StatusConflict, errorPayload{Type: string(kind), Message: code}
	case apperror.KindNotFound:
		return http.StatusNotFound, errorPayload{Type: string(kind), Message: code}
	case apperror.KindRateLimit:
		return http.StatusTooManyRequests, errorPayload{Type: string(kind), Message: code}
	case apperror.KindExternal:
		return http.StatusServiceUnavailable, errorPayload{Type: string(kind), Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the access log with the error type and code.
func classifyErrorForLog(err error) (string, string) {
	if asValidationErrors(err) != nil {
		return string(apperror.KindValidation), "invalid_request"
	}
	kind, ok := apperror.KindOf(err)
	if !ok {
		return "internal_error", ""
	}
	return string(kind), apperror.CodeOf(err)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "manager_cycle":
		return "manager chain would form a cycle"
	case "question_read_only":
		return "shared questions cannot be changed"
	case "self_relationship_mismatch":
		return "SELF requires reviewer and subject to match"
	default:
		return "invalid value"
	}
}
