package handler

import (
	"net/http"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/portal/device"
	"github.com/go-hr-sync/internal/transport/http/middleware"
)

// DeviceHandler handles device endpoints.
type DeviceHandler struct {
	svc device.Service
}

func NewDeviceHandler(svc device.Service) *DeviceHandler {
	return &DeviceHandler{svc: svc}
}

func (h *DeviceHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.RegisterPushTokenRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.RegisterPushToken(r.Context(), claims.UserID, claims.DeviceID, req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "push token registered"})
}
