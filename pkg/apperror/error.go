package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// ToEchoError converts the app error to an echo.HTTPError for proper handling
func (e *Error) ToEchoError() *echo.HTTPError {
	errBody := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		errBody["details"] = e.Details
	}
	return echo.NewHTTPError(e.HTTPStatus, map[string]any{
		"error": errBody,
	})
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   err,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    message,
		Internal:   e.Internal,
		Details:    e.Details,
	}
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   e.Internal,
		Details:    details,
	}
}

// New creates a new application error
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

// Error codes used across the indexing engine. FileState.error_kind and
// DeadLetterEntry.error_kind carry these values verbatim.
const (
	CodeInvalidInput      = "invalid_input"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeThrottled         = "throttled"
	CodeTransport         = "transport"
	CodeAuthorization     = "authorization_denied"
	CodeParse             = "parse_failed"
	CodeCircuitOpen       = "circuit_open"
	CodeResourceExhausted = "resource_exhausted"
	CodeInternal          = "internal_error"
	CodeDatabase          = "database_error"
)

// Common error definitions
var (
	// Caller contract violations; never retried.
	ErrInvalidInput = New(http.StatusBadRequest, CodeInvalidInput, "Invalid input")

	// Resource errors
	ErrNotFound = New(http.StatusNotFound, CodeNotFound, "Resource not found")
	ErrConflict = New(http.StatusConflict, CodeConflict, "Status transition rejected")

	// Transient provider errors. Throttled responses retry with backoff but
	// never move the circuit breaker; transport errors count toward it.
	ErrThrottled = New(http.StatusTooManyRequests, CodeThrottled, "Provider rate limited the request")
	ErrTransport = New(http.StatusServiceUnavailable, CodeTransport, "Transport failure reaching provider")

	// Permanent errors
	ErrAuthorization = New(http.StatusForbidden, CodeAuthorization, "Provider rejected credentials")
	ErrParse         = New(http.StatusUnprocessableEntity, CodeParse, "File could not be parsed")

	// Fast failure while the provider breaker is open; no network call made.
	ErrCircuitOpen = New(http.StatusServiceUnavailable, CodeCircuitOpen, "Embedding provider circuit is open")

	// Memory critical; batch was reduced, caller may retry with a smaller batch.
	ErrResourceExhausted = New(http.StatusInsufficientStorage, CodeResourceExhausted, "Worker memory critical")

	// Server errors
	ErrInternal = New(http.StatusInternalServerError, CodeInternal, "An internal error occurred")
	ErrDatabase = New(http.StatusInternalServerError, CodeDatabase, "Database operation failed")
)

// ToHTTPError converts an app error to an HTTP-friendly format
func ToHTTPError(err error) (int, map[string]any) {
	var appErr *Error
	if errors.As(err, &appErr) {
		errBody := map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			errBody["details"] = appErr.Details
		}
		return appErr.HTTPStatus, map[string]any{
			"error": errBody,
		}
	}

	// Default to internal server error for unknown errors
	return http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"code":    CodeInternal,
			"message": "An internal error occurred",
		},
	}
}

// CodeOf extracts the error code from err, or CodeInternal for plain errors.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeThrottled, CodeTransport, CodeResourceExhausted:
		return true
	}
	return false
}

// NewInvalidInput creates an invalid input error with a custom message
func NewInvalidInput(message string) *Error {
	return ErrInvalidInput.WithMessage(message)
}

// NewNotFound creates a not found error for a resource type and ID
func NewNotFound(resourceType, id string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s '%s' not found", resourceType, id))
}

// NewConflict creates a conflict error with a custom message
func NewConflict(message string) *Error {
	return ErrConflict.WithMessage(message)
}

// NewInternal creates an internal error with a message and optional wrapped error
func NewInternal(message string, err error) *Error {
	return &Error{
		HTTPStatus: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Internal:   err,
	}
}
