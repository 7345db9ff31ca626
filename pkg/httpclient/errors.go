package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/shopcart/pkg/errors"
)

const maxErrorBody = 4 << 10

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Status int
	Body   string
}

// NewStatusError consumes and closes resp.Body, keeping a bounded prefix of it.
func NewStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	drain(resp.Body)
	return &StatusError{
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// Unwrap maps the status onto the application error sentinels so callers can
// use errors.Is and apperrors.HTTPStatus.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case e.Status == http.StatusBadRequest:
		return apperrors.ErrInvalidInput
	case e.Status == http.StatusConflict:
		return apperrors.ErrConflict
	case e.Status >= 500:
		return apperrors.ErrServiceUnavail
	default:
		return nil
	}
}

// CheckResponse returns nil for a 2xx response. Otherwise it consumes the
// body and returns a *StatusError.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return NewStatusError(resp)
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
