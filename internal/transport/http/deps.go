package http

import (
	"github.com/go-hr-sync/internal/portal/auth"
	"github.com/go-hr-sync/internal/portal/device"
	"github.com/go-hr-sync/internal/portal/notification"
	"github.com/go-hr-sync/internal/portal/offer"
	appmiddleware "github.com/go-hr-sync/internal/transport/http/middleware"
	"github.com/go-hr-sync/internal/transport/http/ws"
)

// Deps holds the services and infrastructure the router serves.
type Deps struct {
	Auth          auth.Service
	Notifications notification.Service
	Offers        offer.Service
	Devices       device.Service

	Tokens appmiddleware.TokenVerifier
	Hub    *ws.Hub

	// LoginLimiter guards the public session endpoints. A default
	// 5 req/s, burst 10 limiter is created when nil.
	LoginLimiter *appmiddleware.RateLimiter
}
