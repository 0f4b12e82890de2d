package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-hr-sync/internal/domain"
)

// writeJSONError writes a JSON-encoded error response with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HTTPError maps domain sentinel errors to status codes. Unclassified
// errors are logged and reported as 500 without their text.
func HTTPError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("unhandled request error", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
