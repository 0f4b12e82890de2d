// Package device records where platform pushes for a session should go.
package device

import (
	"context"
	"fmt"

	"github.com/go-hr-sync/internal/domain"
	pkgdevice "github.com/go-hr-sync/internal/pkg/device"
	"github.com/go-hr-sync/internal/pkg/validate"
)

const defaultPlatform = "android"

type Service interface {
	// RegisterPushToken stores req.Token on the caller's device. deviceID is
	// the device bound to the caller's session; req.DeviceUUID, when set,
	// takes precedence.
	RegisterPushToken(ctx context.Context, userID, deviceID string, req domain.RegisterPushTokenRequest) error
}

type deviceStore interface {
	GetByUUID(ctx context.Context, uuid string) (*domain.Device, error)
	Put(ctx context.Context, d *domain.Device) error
	SetPushToken(ctx context.Context, deviceID, token, platform string) error
}

type service struct {
	repo deviceStore
}

func NewService(repo deviceStore) Service {
	return &service{repo: repo}
}

func (s *service) RegisterPushToken(ctx context.Context, userID, deviceID string, req domain.RegisterPushTokenRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	if req.DeviceUUID != nil && *req.DeviceUUID != "" {
		d, err := pkgdevice.Resolve(ctx, s.repo, req.DeviceUUID, userID)
		if err != nil {
			return err
		}
		deviceID = d.DeviceID
	}
	if deviceID == "" {
		return fmt.Errorf("no device bound to session: %w", domain.ErrBadRequest)
	}
	platform := req.Platform
	if platform == "" {
		platform = defaultPlatform
	}
	return s.repo.SetPushToken(ctx, deviceID, req.Token, platform)
}
