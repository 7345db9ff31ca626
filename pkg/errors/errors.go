// Package errors carries the application error type shared by the store, the
// catalog and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels every AppError wraps, so callers can match with errors.Is.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Wire codes.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidInput = "INVALID_INPUT"
	CodeConflict     = "CONFLICT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

// AppError is an error with a wire code, a client-safe message and an HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing resource, e.g. NotFound("cart line", "apple").
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput reports caller misuse. Nothing was changed.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unavailable reports a dependency that could not serve the request. cause
// may be nil; when set it is kept in the chain next to ErrServiceUnavail.
func Unavailable(message string, cause error) *AppError {
	err := ErrServiceUnavail
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrServiceUnavail, cause)
	}
	return &AppError{
		Code:    CodeUnavailable,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

var classes = []struct {
	sentinel error
	status   int
	code     string
}{
	{ErrNotFound, http.StatusNotFound, CodeNotFound},
	{ErrConflict, http.StatusConflict, CodeConflict},
	{ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput},
	{ErrServiceUnavail, http.StatusServiceUnavailable, CodeUnavailable},
}

// Classify returns the status and wire code for err. An *AppError in the
// chain wins; otherwise the first matching sentinel decides, and anything
// else is internal.
func Classify(err error) (status int, code string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code
	}
	for _, c := range classes {
		if errors.Is(err, c.sentinel) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	status, _ := Classify(err)
	return status
}
