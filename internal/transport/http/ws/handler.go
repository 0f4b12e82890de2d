package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-hr-sync/internal/domain"
	jwtinfra "github.com/go-hr-sync/internal/infrastructure/jwt"
	"github.com/gorilla/websocket"
)

type tokenVerifier interface {
	Verify(token string) (*jwtinfra.Claims, error)
}

type sessionGuard interface {
	Active(ctx context.Context, sessionID string) error
}

// Handler upgrades authenticated requests to channel connections.
type Handler struct {
	hub      *Hub
	verifier tokenVerifier
	guard    sessionGuard
	upgrader websocket.Upgrader
}

// NewHandler builds the upgrade handler. guard may be nil, in which case a
// valid signature is enough.
func NewHandler(hub *Hub, verifier tokenVerifier, guard sessionGuard) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		guard:    guard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices connect from native apps without an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
		return
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}
	if h.guard != nil {
		err := h.guard.Active(r.Context(), claims.SessionID)
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			http.Error(w, `{"error":"session is not active"}`, http.StatusUnauthorized)
			return
		case err != nil:
			h.hub.logger.Error("session check failed", "session_id", claims.SessionID, "err", err)
			http.Error(w, `{"error":"temporarily unavailable"}`, http.StatusServiceUnavailable)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warn("upgrade failed", "user_id", claims.UserID, "err", err)
		return
	}
	c := newClient(h.hub, conn, claims.UserID)
	go c.writePump()
	c.readPump()
}
