// Package push registers the device with the platform push provider and
// hands the resulting token to the portal.
package push

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-hr-sync/internal/domain"
)

type Outcome int

const (
	OutcomeRegistered Outcome = iota
	OutcomeUnsupported
	OutcomeDenied
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRegistered:
		return "registered"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeDenied:
		return "denied"
	default:
		return "failed"
	}
}

// Platform is the device push capability.
type Platform interface {
	Name() string
	Supported() bool
	RequestPermission(ctx context.Context) (domain.PushPermission, error)
	Token(ctx context.Context) (string, error)
}

type permissionStore interface {
	PushPermission(ctx context.Context) (domain.PushPermission, error)
	SetPushPermission(ctx context.Context, p domain.PushPermission) error
	DeviceID(ctx context.Context) (string, error)
}

type registrationAPI interface {
	RegisterPushToken(ctx context.Context, req domain.RegisterPushTokenRequest) error
}

// Service never returns errors: every failure is logged and reported
// through the Outcome only.
type Service interface {
	Register(ctx context.Context) Outcome
}

type ServiceDeps struct {
	Platform Platform
	Store    permissionStore
	API      registrationAPI
	Logger   *slog.Logger
}

type service struct {
	platform Platform
	store    permissionStore
	api      registrationAPI
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewService(deps ServiceDeps) Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &service{
		platform: deps.Platform,
		store:    deps.Store,
		api:      deps.API,
		logger:   deps.Logger.With("component", "push"),
	}
}

func (s *service) Register(ctx context.Context) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.platform == nil || !s.platform.Supported() {
		s.logger.Info("push not supported on this device")
		return OutcomeUnsupported
	}

	perm, err := s.store.PushPermission(ctx)
	if err != nil {
		s.logger.Warn("read push permission", "err", err)
		perm = domain.PushUndetermined
	}
	if perm == domain.PushUndetermined {
		perm, err = s.platform.RequestPermission(ctx)
		if err != nil {
			s.logger.Warn("push permission prompt failed", "err", err)
			return OutcomeFailed
		}
		if perm != domain.PushUndetermined {
			if err := s.store.SetPushPermission(ctx, perm); err != nil {
				s.logger.Warn("persist push permission", "err", err)
			}
		}
	}
	if perm != domain.PushGranted {
		s.logger.Info("push permission not granted", "permission", string(perm))
		return OutcomeDenied
	}

	token, err := s.platform.Token(ctx)
	if err != nil || token == "" {
		s.logger.Warn("push token unavailable", "err", err)
		return OutcomeFailed
	}

	req := domain.RegisterPushTokenRequest{Token: token, Platform: s.platform.Name()}
	if deviceID, err := s.store.DeviceID(ctx); err == nil {
		req.DeviceUUID = &deviceID
	} else {
		s.logger.Warn("device id unavailable", "err", err)
	}
	if err := s.api.RegisterPushToken(ctx, req); err != nil {
		s.logger.Warn("push token registration failed", "err", err)
		return OutcomeFailed
	}
	s.logger.Info("push token registered", "platform", req.Platform)
	return OutcomeRegistered
}
