package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/transport/http/middleware"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuthEnvelope wraps login responses.
type AuthEnvelope struct {
	Bearer  string          `json:"Bearer"`
	Profile *domain.Profile `json:"profile"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Profile *domain.Profile `json:"profile"`
}

type CountEnvelope struct {
	Count int `json:"count"`
}

type OfferCreatedEnvelope struct {
	Offer    *domain.Offer `json:"offer"`
	Notified int           `json:"notified"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

func httpError(w http.ResponseWriter, err error) {
	middleware.HTTPError(w, err)
}

// decode reads a JSON body into v, rejecting unknown shapes with 400.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
