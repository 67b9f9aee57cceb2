package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/florianilch/dng-proxy/internal/dng"
)

// ErrorKind names the class of a failed request in the error envelope.
type ErrorKind string

const (
	ErrorKindAuthentication ErrorKind = "AuthenticationError"
	ErrorKindNotFound       ErrorKind = "NotFoundError"
	ErrorKindAPI            ErrorKind = "APIError"
	ErrorKindConfiguration  ErrorKind = "ConfigurationError"
	ErrorKindInvalidInput   ErrorKind = "InvalidInputError"
	ErrorKindUnexpected     ErrorKind = "UnexpectedError"
)

// ErrorResponse is the JSON envelope returned for every failed request.
type ErrorResponse struct {
	Error   ErrorKind `json:"error"`
	Message string    `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes an error envelope with the status code belonging to kind.
func writeJSONError(ctx context.Context, w http.ResponseWriter, kind ErrorKind, message string) {
	writeJSON(ctx, w, ErrorResponse{Error: kind, Message: message}, statusForKind(kind))
}

// invalidInputError rejects a request before any upstream call is made.
type invalidInputError struct {
	message string
}

func (e *invalidInputError) Error() string {
	return e.message
}

// writeError classifies err and writes the matching envelope.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := kindForError(err)
	switch kind {
	case ErrorKindUnexpected:
		slog.ErrorContext(ctx, "unexpected error handling request", "error", err)
	case ErrorKindInvalidInput:
		slog.DebugContext(ctx, "rejecting invalid input", "error", err)
	default:
		slog.WarnContext(ctx, "DNG request failed", "error", err, "kind", string(kind))
	}
	writeJSONError(ctx, w, kind, err.Error())
}

// kindForError maps the DNG error taxonomy and local failures to envelope kinds.
func kindForError(err error) ErrorKind {
	var inputErr *invalidInputError
	switch {
	case errors.As(err, &inputErr):
		return ErrorKindInvalidInput
	case errors.Is(err, dng.ErrAuthentication):
		return ErrorKindAuthentication
	case errors.Is(err, dng.ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, dng.ErrAPI):
		return ErrorKindAPI
	case errors.Is(err, dng.ErrIncompleteCredentials):
		return ErrorKindConfiguration
	default:
		return ErrorKindUnexpected
	}
}

func statusForKind(kind ErrorKind) int {
	switch kind {
	case ErrorKindAuthentication:
		return http.StatusUnauthorized
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
