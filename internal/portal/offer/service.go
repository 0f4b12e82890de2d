// Package offer publishes employee perks and announces them as
// offer-category notifications.
package offer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/pkg/id"
	"github.com/go-hr-sync/internal/pkg/validate"
	"golang.org/x/sync/errgroup"
)

const announceConcurrency = 8

type Service interface {
	ListActive(ctx context.Context) ([]domain.Offer, error)
	// Create stores the offer and reports how many employees were notified.
	Create(ctx context.Context, req domain.CreateOfferRequest) (*domain.Offer, int, error)
}

type offerStore interface {
	Put(ctx context.Context, o *domain.Offer) error
	ListActive(ctx context.Context) ([]domain.Offer, error)
}

type audience interface {
	EnabledIDs(ctx context.Context) ([]string, error)
}

type notifier interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
}

type ServiceDeps struct {
	Offers   offerStore
	Users    audience
	Notifier notifier
	Logger   *slog.Logger
}

type service struct {
	offers   offerStore
	users    audience
	notifier notifier
	logger   *slog.Logger
}

func NewService(deps ServiceDeps) Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		offers:   deps.Offers,
		users:    deps.Users,
		notifier: deps.Notifier,
		logger:   logger.With("component", "offer"),
	}
}

func (s *service) ListActive(ctx context.Context) ([]domain.Offer, error) {
	return s.offers.ListActive(ctx)
}

func (s *service) Create(ctx context.Context, req domain.CreateOfferRequest) (*domain.Offer, int, error) {
	if err := validate.Struct(req); err != nil {
		return nil, 0, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	now := time.Now().UTC().Truncate(time.Second)
	o := &domain.Offer{
		OfferID:             id.NewAt(now),
		Title:               req.Title,
		Provider:            req.Provider,
		Discount:            req.Discount,
		Description:         req.Description,
		EligibilityCriteria: req.EligibilityCriteria,
		IsActive:            true,
		CreatedAt:           now,
	}
	if err := s.offers.Put(ctx, o); err != nil {
		return nil, 0, err
	}

	recipients := req.Audience
	if len(recipients) == 0 {
		ids, err := s.users.EnabledIDs(ctx)
		if err != nil {
			s.logger.Warn("offer stored but audience lookup failed", "offer_id", o.OfferID, "err", err)
			return o, 0, nil
		}
		recipients = ids
	}
	return o, s.announce(ctx, o, recipients), nil
}

// announce creates one offer notification per recipient and returns how
// many succeeded.
func (s *service) announce(ctx context.Context, o *domain.Offer, recipients []string) int {
	msg := announcement(o)
	var (
		g    errgroup.Group
		sent = make(chan struct{}, len(recipients))
	)
	g.SetLimit(announceConcurrency)
	for _, uid := range recipients {
		g.Go(func() error {
			_, err := s.notifier.Create(ctx, domain.CreateNotificationRequest{
				UserID:   uid,
				Title:    o.Title,
				Message:  msg,
				Category: domain.CategoryOffer,
				OfferID:  o.OfferID,
			})
			if err != nil {
				s.logger.Warn("offer announcement failed", "offer_id", o.OfferID, "user_id", uid, "err", err)
				return nil
			}
			sent <- struct{}{}
			return nil
		})
	}
	_ = g.Wait()
	return len(sent)
}

func announcement(o *domain.Offer) string {
	parts := make([]string, 0, 3)
	if o.Discount != "" {
		parts = append(parts, o.Discount)
	}
	if o.Provider != "" {
		parts = append(parts, "from "+o.Provider)
	}
	head := strings.Join(parts, " ")
	switch {
	case head == "":
		return o.Description
	case o.Description == "":
		return head
	default:
		return head + ". " + o.Description
	}
}
