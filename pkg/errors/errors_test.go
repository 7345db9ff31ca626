package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	withCause := &AppError{Code: CodeInternal, Message: "write failed", Err: fmt.Errorf("quota exceeded")}
	assert.Equal(t, "INTERNAL_ERROR: write failed: quota exceeded", withCause.Error())

	bare := &AppError{Code: CodeNotFound, Message: "line not found"}
	assert.Equal(t, "NOT_FOUND: line not found", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("cart line", "sku-1"), CodeNotFound, http.StatusNotFound, ErrNotFound},
		{"invalid input", InvalidInput("product id is required"), CodeInvalidInput, http.StatusBadRequest, ErrInvalidInput},
		{"unavailable", Unavailable("catalog is unreachable", nil), CodeUnavailable, http.StatusServiceUnavailable, ErrServiceUnavail},
		{"internal", Internal(cause), CodeInternal, http.StatusInternalServerError, cause},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestNotFound_Message(t *testing.T) {
	assert.Equal(t, `cart line "sku-1" not found`, NotFound("cart line", "sku-1").Message)
}

func TestUnavailable_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Unavailable("catalog is unreachable", cause)

	assert.ErrorIs(t, err, ErrServiceUnavail)
	assert.ErrorIs(t, err, cause)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error", InvalidInput("bad"), http.StatusBadRequest, CodeInvalidInput},
		{"wrapped app error", fmt.Errorf("ctx: %w", NotFound("line", "x")), http.StatusNotFound, CodeNotFound},
		{"custom app error code", &AppError{Code: "CATALOG_UNAVAILABLE", Status: http.StatusServiceUnavailable}, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE"},
		{"sentinel not found", ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"sentinel conflict", fmt.Errorf("x: %w", ErrConflict), http.StatusConflict, CodeConflict},
		{"sentinel invalid", ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput},
		{"sentinel unavailable", ErrServiceUnavail, http.StatusServiceUnavailable, CodeUnavailable},
		{"unknown", errors.New("mystery"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}
