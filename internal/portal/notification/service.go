// Package notification serves the portal's per-employee notification feed and
// delivers new entries over the realtime channel and platform push.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/infrastructure/realtime"
	"github.com/go-hr-sync/internal/infrastructure/sns"
	"github.com/go-hr-sync/internal/pkg/id"
	"github.com/go-hr-sync/internal/pkg/validate"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	pushConcurrency = 4
)

type Service interface {
	List(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	ListRecent(ctx context.Context, userID string, limit int32) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type broadcaster interface {
	BroadcastToUser(userID, op string, data any) int
}

type pushTargets interface {
	ListPushTargets(ctx context.Context, userID string) ([]domain.Device, error)
}

type pusher interface {
	PublishPush(ctx context.Context, endpointARN string, p sns.Payload) error
}

// ServiceDeps wires the service. Channel, Devices and Push may be nil; the
// matching delivery path is then skipped.
type ServiceDeps struct {
	Repo    notificationStore
	Channel broadcaster
	Devices pushTargets
	Push    pusher
	Logger  *slog.Logger
}

type service struct {
	repo    notificationStore
	channel broadcaster
	devices pushTargets
	push    pusher
	logger  *slog.Logger
}

func NewService(deps ServiceDeps) Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		repo:    deps.Repo,
		channel: deps.Channel,
		devices: deps.Devices,
		push:    deps.Push,
		logger:  logger.With("component", "notification"),
	}
}

func (s *service) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return s.repo.ListRecent(ctx, userID, int32(limit))
}

func (s *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID string) error {
	if notificationID == "" {
		return fmt.Errorf("notification id required: %w", domain.ErrBadRequest)
	}
	return s.repo.MarkAsRead(ctx, userID, notificationID)
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("marked all read", "user_id", userID, "count", n)
	return n, nil
}

// Create stores the notification, then delivers it. Delivery failures are
// logged; the stored row is what later snapshots reconcile against.
func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	// created_at is a sort key compared as a string; whole seconds keep
	// RFC3339 values ordered.
	now := time.Now().UTC().Truncate(time.Second)
	n := &domain.Notification{
		NotificationID: id.NewAt(now),
		UserID:         req.UserID,
		Title:          req.Title,
		Message:        req.Message,
		Category:       req.Category,
		OfferID:        req.OfferID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if n.Category == "" {
		n.Category = domain.CategoryFromTitle(n.Title)
	}
	if err := s.repo.Put(ctx, n); err != nil {
		return nil, err
	}
	s.deliver(ctx, n)
	return n, nil
}

func (s *service) deliver(ctx context.Context, n *domain.Notification) {
	if s.channel != nil {
		live := s.channel.BroadcastToUser(n.UserID, realtime.OpNewNotification, n)
		s.logger.Debug("channel delivery", "notification_id", n.NotificationID, "connections", live)
	}
	if s.devices == nil || s.push == nil {
		return
	}
	targets, err := s.devices.ListPushTargets(ctx, n.UserID)
	if err != nil {
		s.logger.Warn("push targets lookup failed", "user_id", n.UserID, "err", err)
		return
	}
	payload := sns.Payload{
		Notification: sns.PayloadNotification{Title: n.Title, Body: n.Message},
		Data: map[string]string{
			"id":       n.NotificationID,
			"category": n.Category,
			"created":  n.CreatedAt.Format(time.RFC3339),
		},
	}
	var g errgroup.Group
	g.SetLimit(pushConcurrency)
	for _, d := range targets {
		g.Go(func() error {
			if err := s.push.PublishPush(ctx, *d.PushToken, payload); err != nil {
				s.logger.Warn("push failed", "device_id", d.DeviceID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
