package device

import (
	"context"
	"errors"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/pkg/id"
)

type store interface {
	GetByUUID(ctx context.Context, uuid string) (*domain.Device, error)
	Put(ctx context.Context, d *domain.Device) error
}

// Resolve returns the Device registered under deviceUUID, creating it when
// unknown. A device last used by another user is handed over to userID and
// its push token dropped, so pushes stop reaching the previous user.
func Resolve(ctx context.Context, repo store, deviceUUID *string, userID string) (*domain.Device, error) {
	now := time.Now().UTC()
	if deviceUUID != nil && *deviceUUID != "" {
		d, err := repo.GetByUUID(ctx, *deviceUUID)
		switch {
		case err == nil && d.UserID == userID && d.Enable:
			return d, nil
		case err == nil:
			d.UserID = userID
			d.PushToken = nil
			d.Enable = true
			d.UpdatedAt = now
			if err := repo.Put(ctx, d); err != nil {
				return nil, err
			}
			return d, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	devUUID := id.New()
	if deviceUUID != nil && *deviceUUID != "" {
		devUUID = *deviceUUID
	}
	d := &domain.Device{
		DeviceID:  id.New(),
		UUID:      devUUID,
		UserID:    userID,
		Enable:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Put(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
