package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-hr-sync/internal/config"
	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/transport/http/handler"
	appmiddleware "github.com/go-hr-sync/internal/transport/http/middleware"
	"github.com/go-hr-sync/internal/transport/http/ws"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the portal router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.Tokens, deps.Auth)

	sensitiveRL := deps.LoginLimiter
	if sensitiveRL == nil {
		sensitiveRL = appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	}

	healthH := handler.NewHealthHandler(deps.Hub)
	sessionH := handler.NewSessionHandler(deps.Auth)
	notifH := handler.NewNotificationHandler(deps.Notifications)
	offerH := handler.NewOfferHandler(deps.Offers)
	deviceH := handler.NewDeviceHandler(deps.Devices)
	wsH := ws.NewHandler(deps.Hub, deps.Tokens, deps.Auth)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/sessions/otp/request", sessionH.RequestOTP)
		r.With(sensitiveRL.Limit).Post("/sessions/otp", sessionH.LoginWithOTP)
		// The channel authenticates with ?token= itself.
		r.Get("/ws", wsH.ServeHTTP)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			r.Get("/notifications", notifH.List)
			r.Get("/notifications/unread-count", notifH.UnreadCount)
			r.Put("/notifications/read-all", notifH.MarkAllRead)
			r.Put("/notifications/{id}", notifH.MarkAsRead)
			r.Get("/offers", offerH.List)
			r.Put("/devices/push-token", deviceH.RegisterPushToken)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/notifications", notifH.Create)
				r.Post("/offers", offerH.Create)
			})
		})
	})

	return r
}
