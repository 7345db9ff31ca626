package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/shopcart/pkg/errors"
	"github.com/utafrali/shopcart/pkg/logger"
	"github.com/utafrali/shopcart/pkg/validator"
)

// Response is the JSON envelope every endpoint answers with.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps v in the data envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteError maps err onto a status and error code and writes it. Server-side
// failures are logged with the request-scoped logger when one is present.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "VALIDATION_ERROR",
				Message:   "request validation failed",
				Fields:    valErr.Fields(),
				RequestID: requestID,
			},
		})
		return
	}

	status, code := apperrors.Classify(err)
	resp := &ErrorResponse{Code: code, Message: clientMessage(err, code), RequestID: requestID}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.Int("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{Error: resp})
}

// clientMessage returns what the client may see for err. Only AppError
// messages and invalid-input details are considered safe.
func clientMessage(err error, code string) string {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Message
	case code == apperrors.CodeNotFound:
		return "resource not found"
	case code == apperrors.CodeInvalidInput, code == apperrors.CodeConflict:
		return err.Error()
	case code == apperrors.CodeUnavailable:
		return "a dependency is unavailable"
	default:
		return "an internal error occurred"
	}
}

// WriteDecodeError reports a body that could not be decoded or validated.
func WriteDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteError(w, r, err, nil)
		return
	}

	status := http.StatusBadRequest
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	WriteJSON(w, status, Response{
		Error: &ErrorResponse{
			Code:      "INVALID_INPUT",
			Message:   err.Error(),
			RequestID: logger.CorrelationIDFromContext(r.Context()),
		},
	})
}

// PathParam trims a path parameter and reports whether anything is left.
// An empty value gets a 400 response.
func PathParam(w http.ResponseWriter, r *http.Request, name, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "INVALID_PARAMETER",
				Message:   name + " is required",
				RequestID: logger.CorrelationIDFromContext(r.Context()),
			},
		})
		return "", false
	}
	return value, true
}
