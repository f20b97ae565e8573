// Package httputil centralizes JSON response encoding and domain error
// translation so every handler produces the same envelope shapes.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "chaintrace/pkg/domain-errors"
)

// statusOf maps domain error codes to HTTP statuses.
func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorName maps domain error codes to wire-stable error identifiers.
func errorName(code dErrors.Code) string {
	switch code {
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// WriteJSON encodes v with the given status. Encoding failures are swallowed
// because the header has already been committed.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
// Internal and unavailable errors omit the description so infrastructure
// details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": errorName(code)}
	if code != dErrors.CodeInternal && code != dErrors.CodeUnavailable {
		body["error_description"] = err.Error()
	}
	WriteJSON(w, statusOf(code), body)
}

// Decode unmarshals the request body into T, writing a bad_request envelope
// on failure. The second return reports whether decoding succeeded.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "request decode failed", "path", r.URL.Path, "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		var zero T
		return zero, false
	}
	return req, true
}
