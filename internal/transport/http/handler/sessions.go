package handler

import (
	"net/http"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/portal/auth"
	"github.com/go-hr-sync/internal/transport/http/middleware"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc auth.Service
}

func NewSessionHandler(svc auth.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.Credentials
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Bearer: res.Bearer, Profile: &res.Profile})
}

func (h *SessionHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.OTPRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestOTP(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "if the number is registered a code was sent"})
}

func (h *SessionHandler) LoginWithOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.OTPLogin
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.LoginWithOTP(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Bearer: res.Bearer, Profile: &res.Profile})
}

func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, err := h.svc.Current(r.Context(), claims.SessionID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{Profile: p})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}
