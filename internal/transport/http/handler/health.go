package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type readiness interface {
	Closed() bool
}

// HealthHandler answers probes. "ready" fails once the channel hub is closed.
type HealthHandler struct {
	hub readiness
}

func NewHealthHandler(hub readiness) *HealthHandler { return &HealthHandler{hub: hub} }

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		if h.hub != nil && h.hub.Closed() {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
