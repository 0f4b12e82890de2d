// Package arbitration decides which single interstitial, an offer or a
// notification, to put in front of the user, and never repeats one that was
// dismissed on this device.
package arbitration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/pkg/observer"
	"golang.org/x/sync/errgroup"
)

type offerSource interface {
	FetchActiveOffers(ctx context.Context) ([]domain.Offer, error)
}

type notificationSource interface {
	Latest(ctx context.Context) (*domain.Notification, error)
}

type readMarker interface {
	MarkRead(ctx context.Context, notificationID string) bool
}

type watermarkStore interface {
	Watermark(ctx context.Context, kind domain.Kind) (string, error)
	SetWatermark(ctx context.Context, kind domain.Kind, entityID string) error
}

// Interstitial is the item on screen. Exactly one of Offer and Notification
// is set; a pushed notification classified as an offer keeps Notification.
type Interstitial struct {
	Kind         domain.Kind
	EntityID     string
	Title        string
	Body         string
	CreatedAt    time.Time
	Offer        *domain.Offer
	Notification *domain.Notification
}

type Action string

const (
	ActionShow    Action = "show"
	ActionDismiss Action = "dismiss"
	ActionClear   Action = "clear"
)

type Event struct {
	Action       Action
	Interstitial *Interstitial
}

type EngineDeps struct {
	Offers        offerSource
	Notifications notificationSource
	Feed          readMarker
	Watermarks    watermarkStore
	Logger        *slog.Logger
}

type Engine struct {
	offers        offerSource
	notifications notificationSource
	feed          readMarker
	watermarks    watermarkStore
	logger        *slog.Logger
	subs          *observer.Registry[Event]

	// pass serializes evaluation passes.
	pass sync.Mutex

	mu      sync.Mutex
	current *Interstitial
	epoch   uint64
}

func NewEngine(deps EngineDeps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		offers:        deps.Offers,
		notifications: deps.Notifications,
		feed:          deps.Feed,
		watermarks:    deps.Watermarks,
		logger:        deps.Logger.With("component", "arbitration"),
		subs:          observer.New[Event](),
	}
}

func (e *Engine) Subscribe(fn func(Event)) string { return e.subs.Subscribe(fn) }

func (e *Engine) Unsubscribe(token string) bool { return e.subs.Unsubscribe(token) }

func (e *Engine) SubscribeScoped(ctx context.Context, fn func(Event)) func() {
	return e.subs.SubscribeScoped(ctx, fn)
}

// Current returns the interstitial on screen, or nil.
func (e *Engine) Current() *Interstitial {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Evaluate fetches the newest active offer and the newest notification and
// shows whichever unseen one is newer. A notification wins a tie. An offer
// category notification competes with the offer, not with notifications.
// Any failure suppresses this pass. It returns what was shown, if anything.
func (e *Engine) Evaluate(ctx context.Context) *Interstitial {
	e.pass.Lock()
	defer e.pass.Unlock()

	epoch, showing := e.state()
	if showing {
		return nil
	}

	var (
		offer *domain.Offer
		notif *domain.Notification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := e.offers.FetchActiveOffers(gctx)
		if err != nil {
			return fmt.Errorf("fetch offers: %w", err)
		}
		offer = newestOffer(list)
		return nil
	})
	g.Go(func() error {
		n, err := e.notifications.Latest(gctx)
		if err != nil {
			return fmt.Errorf("fetch notification: %w", err)
		}
		notif = n
		return nil
	})
	if err := g.Wait(); err != nil {
		e.logger.Warn("arbitration pass suppressed", "err", err)
		return nil
	}

	// The latest notification competes in the stream its category puts it
	// in. Each stream offers only its newest entity; an older one is never
	// shown in its place.
	newest := map[domain.Kind]*Interstitial{}
	if offer != nil {
		newest[domain.KindOffer] = fromOffer(*offer)
	}
	if notif != nil {
		it := fromNotification(*notif, notif.Kind())
		newest[it.Kind] = choose([]*Interstitial{newest[it.Kind], it})
	}

	var candidates []*Interstitial
	for _, kind := range []domain.Kind{domain.KindOffer, domain.KindNotification} {
		it := newest[kind]
		if it == nil {
			continue
		}
		seen, err := e.seen(ctx, kind, it.EntityID)
		if err != nil {
			e.logger.Warn("arbitration pass suppressed", "err", err)
			return nil
		}
		if !seen {
			candidates = append(candidates, it)
		}
	}
	return e.present(epoch, choose(candidates))
}

// EvaluatePushed considers a channel-delivered entity. Its category decides
// whether it is shown as an offer or as a notification.
func (e *Engine) EvaluatePushed(ctx context.Context, n domain.Notification) *Interstitial {
	if n.NotificationID == "" {
		return nil
	}
	e.pass.Lock()
	defer e.pass.Unlock()

	epoch, showing := e.state()
	if showing {
		return nil
	}
	it := fromNotification(n, n.Kind())
	seen, err := e.seen(ctx, it.Kind, it.EntityID)
	if err != nil {
		e.logger.Warn("arbitration pass suppressed", "err", err)
		return nil
	}
	if seen {
		return nil
	}
	return e.present(epoch, it)
}

// Dismiss records the shown entity as seen for its kind and clears the
// screen. The watermark is written before Dismiss returns. Notifications
// are also marked read.
func (e *Engine) Dismiss(ctx context.Context) error {
	e.mu.Lock()
	cur := e.current
	e.mu.Unlock()
	if cur == nil {
		return nil
	}

	if err := e.watermarks.SetWatermark(ctx, cur.Kind, cur.EntityID); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}

	e.mu.Lock()
	if e.current != cur {
		e.mu.Unlock()
		return nil
	}
	e.current = nil
	e.mu.Unlock()

	if cur.Notification != nil && e.feed != nil {
		e.feed.MarkRead(ctx, cur.Notification.NotificationID)
	}
	e.logger.Info("interstitial dismissed", "kind", string(cur.Kind), "id", cur.EntityID)
	e.subs.Publish(Event{Action: ActionDismiss, Interstitial: cur})
	return nil
}

// Reset clears the screen and discards passes still in flight. Watermarks
// are device state and survive.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.epoch++
	cleared := e.current
	e.current = nil
	e.mu.Unlock()
	if cleared != nil {
		e.subs.Publish(Event{Action: ActionClear, Interstitial: cleared})
	}
}

func (e *Engine) state() (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch, e.current != nil
}

func (e *Engine) seen(ctx context.Context, kind domain.Kind, entityID string) (bool, error) {
	wm, err := e.watermarks.Watermark(ctx, kind)
	if err != nil {
		return false, fmt.Errorf("read %s watermark: %w", kind, err)
	}
	return wm == entityID, nil
}

func (e *Engine) present(epoch uint64, it *Interstitial) *Interstitial {
	if it == nil {
		return nil
	}
	e.mu.Lock()
	if e.epoch != epoch || e.current != nil {
		e.mu.Unlock()
		return nil
	}
	e.current = it
	e.mu.Unlock()

	e.logger.Info("interstitial shown", "kind", string(it.Kind), "id", it.EntityID)
	e.subs.Publish(Event{Action: ActionShow, Interstitial: it})
	return it
}
