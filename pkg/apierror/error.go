package apierror

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"dzchess-analyzer/internal/model"
)

// Error represents a structured API error response.
type Error struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details,omitempty"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// WithDetails adds field-level error details.
func (e *Error) WithDetails(details ...FieldError) *Error {
	e.Details = details
	return e
}

// ToJSON converts the error to JSON bytes.
func (e *Error) ToJSON() []byte {
	body := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}

	data, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   body,
	})
	return data
}

// FromError maps a domain error to an API error. Unknown errors become a 500
// without leaking their message.
func FromError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return FromValidation(verrs)
	}

	switch {
	case errors.Is(err, model.ErrInvalidJob):
		return BadRequest(err.Error())
	case errors.Is(err, model.ErrPlayerNotFound):
		return NotFound("player not found")
	case errors.Is(err, model.ErrJobNotFound):
		return NotFound("job not found")
	case errors.Is(err, model.ErrPlayerBusy):
		return Conflict("player already has a job in progress")
	case errors.Is(err, model.ErrJobTerminal):
		return Conflict("job is already finished")
	case errors.Is(err, model.ErrQueueFull):
		return ServiceUnavailable("job queue is full, retry later")
	case errors.Is(err, model.ErrSourceUnavailable):
		return ServiceUnavailable("game archive is unavailable")
	}
	return InternalError("")
}

// FromValidation turns validator errors into field details.
func FromValidation(verrs validator.ValidationErrors) *Error {
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{
			Field:   strings.ToLower(fe.Field()),
			Message: "failed on " + fe.Tag() + ruleParam(fe.Param()),
		})
	}
	return ValidationError("invalid request", details...)
}

func ruleParam(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

func newError(status int, code, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{StatusCode: status, Code: code, Message: message}
}

// BadRequest is a 400 with a caller-facing message.
func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, "BAD_REQUEST", message, "bad request")
}

// ValidationError is a 400 listing the offending fields.
func ValidationError(message string, details ...FieldError) *Error {
	return newError(http.StatusBadRequest, "VALIDATION_ERROR", message, "invalid request").WithDetails(details...)
}

func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message, "Authentication required")
}

func NotFound(message string) *Error {
	return newError(http.StatusNotFound, "NOT_FOUND", message, "Resource not found")
}

func Conflict(message string) *Error {
	return newError(http.StatusConflict, "CONFLICT", message, "conflict")
}

func TooManyRequests(message string) *Error {
	return newError(http.StatusTooManyRequests, "RATE_LIMITED", message, "Too many requests")
}

// InternalError never carries the underlying error text.
func InternalError(message string) *Error {
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", message, "An unexpected error occurred")
}

func ServiceUnavailable(message string) *Error {
	return newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, "Service temporarily unavailable")
}
