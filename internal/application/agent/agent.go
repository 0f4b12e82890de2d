// Package agent ties the session lifecycle to the per-session sync state:
// it owns one scope per signed-in user, feeds channel events into the feed
// and the arbitration engine, and tears everything down on sign-out.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-hr-sync/internal/application/arbitration"
	"github.com/go-hr-sync/internal/application/feed"
	"github.com/go-hr-sync/internal/application/session"
	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/infrastructure/realtime"
	"golang.org/x/time/rate"
)

const (
	defaultFeedLimit      = 20
	defaultReconcileEvery = 5 * time.Second
)

type sessionEvents interface {
	SubscribeScoped(ctx context.Context, fn func(session.Event)) func()
}

type channelEvents interface {
	SubscribeScoped(ctx context.Context, fn func(realtime.Message)) func()
}

type feedStore interface {
	LoadSnapshot(ctx context.Context, limit int) error
	IngestPush(n domain.Notification) bool
	Reset()
}

type arbiter interface {
	Evaluate(ctx context.Context) *arbitration.Interstitial
	EvaluatePushed(ctx context.Context, n domain.Notification) *arbitration.Interstitial
	Reset()
}

type Deps struct {
	Sessions sessionEvents
	Channel  channelEvents
	Feed     feedStore
	Arbiter  arbiter

	FeedLimit int
	// ReconcileEvery bounds how often a reconnect triggers a snapshot.
	ReconcileEvery time.Duration
	Logger         *slog.Logger
}

// scope is the state owned by one signed-in user.
type scope struct {
	userID string
	ctx    context.Context
	cancel context.CancelFunc
}

type Agent struct {
	sessions  sessionEvents
	channel   channelEvents
	feed      feedStore
	arbiter   arbiter
	feedLimit int
	reconcile *rate.Limiter
	logger    *slog.Logger
	wg        sync.WaitGroup

	mu      sync.Mutex
	base    context.Context
	current *scope
	release []func()
}

func New(deps Deps) *Agent {
	if deps.FeedLimit <= 0 {
		deps.FeedLimit = defaultFeedLimit
	}
	if deps.ReconcileEvery <= 0 {
		deps.ReconcileEvery = defaultReconcileEvery
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Agent{
		sessions:  deps.Sessions,
		channel:   deps.Channel,
		feed:      deps.Feed,
		arbiter:   deps.Arbiter,
		feedLimit: deps.FeedLimit,
		reconcile: rate.NewLimiter(rate.Every(deps.ReconcileEvery), 1),
		logger:    deps.Logger.With("component", "agent"),
	}
}

// Start subscribes to session and channel events. It must run before the
// session is restored or signed in. Subscriptions end with ctx.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	a.base = ctx
	a.mu.Unlock()
	a.release = append(a.release,
		a.sessions.SubscribeScoped(ctx, a.onSession),
		a.channel.SubscribeScoped(ctx, a.onChannel),
	)
}

// Close ends the current scope and waits for its background work.
func (a *Agent) Close() {
	for _, r := range a.release {
		r()
	}
	a.endScope()
	a.wg.Wait()
}

// Scope reports the user the agent currently works for.
func (a *Agent) Scope() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return "", false
	}
	return a.current.userID, true
}

func (a *Agent) onSession(ev session.Event) {
	if ev.Session == nil {
		a.endScope()
		return
	}
	a.mu.Lock()
	if a.current != nil && a.current.userID == ev.Session.UserID {
		a.mu.Unlock()
		return
	}
	// Validation confirms a scope opened by login or restore. Without one
	// the session it belongs to has already ended.
	if a.current == nil && ev.Reason == session.ReasonValidated {
		a.mu.Unlock()
		a.logger.Debug("ignoring validation for ended session", "user_id", ev.Session.UserID)
		return
	}
	a.mu.Unlock()

	a.endScope()
	sc := a.beginScope(ev.Session.UserID)
	if sc == nil {
		return
	}
	a.logger.Info("session scope started", "user_id", sc.userID)
	a.background(sc, func(ctx context.Context) {
		a.loadSnapshot(ctx)
		a.arbiter.Evaluate(ctx)
	})
}

func (a *Agent) onChannel(msg realtime.Message) {
	a.mu.Lock()
	sc := a.current
	a.mu.Unlock()
	if sc == nil {
		return
	}

	switch msg.Op {
	case realtime.OpNewNotification:
		if msg.Notification == nil {
			return
		}
		n := *msg.Notification
		a.feed.IngestPush(n)
		a.background(sc, func(ctx context.Context) {
			a.arbiter.EvaluatePushed(ctx, n)
		})
	case realtime.OpConnected:
		if !msg.Reconnect {
			return
		}
		if !a.reconcile.Allow() {
			a.logger.Debug("reconcile throttled")
			return
		}
		a.background(sc, func(ctx context.Context) {
			a.loadSnapshot(ctx)
			a.arbiter.Evaluate(ctx)
		})
	}
}

func (a *Agent) loadSnapshot(ctx context.Context) {
	err := a.feed.LoadSnapshot(ctx, a.feedLimit)
	switch {
	case err == nil:
	case errors.Is(err, feed.ErrStale), ctx.Err() != nil:
		a.logger.Debug("snapshot discarded", "err", err)
	default:
		a.logger.Warn("snapshot failed", "err", err)
	}
}

func (a *Agent) beginScope(userID string) *scope {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.base == nil || a.base.Err() != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(a.base)
	a.current = &scope{userID: userID, ctx: ctx, cancel: cancel}
	return a.current
}

func (a *Agent) endScope() {
	a.mu.Lock()
	sc := a.current
	a.current = nil
	a.mu.Unlock()
	if sc == nil {
		return
	}
	sc.cancel()
	a.feed.Reset()
	a.arbiter.Reset()
	a.logger.Info("session scope ended", "user_id", sc.userID)
}

func (a *Agent) background(sc *scope, fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(sc.ctx)
	}()
}
