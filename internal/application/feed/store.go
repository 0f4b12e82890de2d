// Package feed is the in-memory notification feed of the active session. It
// merges snapshot fetches with channel pushes and owns the unread count.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/pkg/observer"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWindow     = 50
	defaultAckTimeout = 15 * time.Second
)

// ErrStale is returned when a snapshot completes after Reset.
var ErrStale = errors.New("feed: result superseded by reset")

type notificationAPI interface {
	FetchNotifications(ctx context.Context, limit int) ([]domain.Notification, error)
	FetchUnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
	MarkAllRead(ctx context.Context) error
}

// Change is published after every mutation.
type Change struct {
	Reason string
	Items  []domain.Notification
	Unread int
}

const (
	ReasonSnapshot = "snapshot"
	ReasonPush     = "push"
	ReasonRead     = "read"
	ReasonReadAll  = "read_all"
	ReasonReset    = "reset"
)

type Options struct {
	// Window caps the list after a push. Snapshots never purge.
	Window     int
	AckTimeout time.Duration
	Logger     *slog.Logger
}

type Store struct {
	api        notificationAPI
	window     int
	ackTimeout time.Duration
	logger     *slog.Logger
	subs       *observer.Registry[Change]
	wg         sync.WaitGroup

	mu           sync.Mutex
	items        []domain.Notification
	unread       int
	remoteUnread int
	epoch        uint64
}

func NewStore(api notificationAPI, opts Options) *Store {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		api:        api,
		window:     opts.Window,
		ackTimeout: opts.AckTimeout,
		logger:     opts.Logger.With("component", "feed"),
		subs:       observer.New[Change](),
	}
}

func (s *Store) Subscribe(fn func(Change)) string { return s.subs.Subscribe(fn) }

func (s *Store) Unsubscribe(token string) bool { return s.subs.Unsubscribe(token) }

func (s *Store) SubscribeScoped(ctx context.Context, fn func(Change)) func() {
	return s.subs.SubscribeScoped(ctx, fn)
}

// Items returns a copy of the list, newest first.
func (s *Store) Items() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.items...)
}

// UnreadCount is the number of unread entries in the list.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// RemoteUnreadCount is the last server-reported unread total, which may
// include entries older than anything loaded.
func (s *Store) RemoteUnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteUnread
}

func (s *Store) Get(notificationID string) (domain.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(notificationID); i >= 0 {
		return s.items[i], true
	}
	return domain.Notification{}, false
}

// LoadSnapshot fetches the newest limit entries and the unread total
// concurrently and replaces the part of the list the snapshot covers.
// Entries newer than the snapshot stay at the head; entries older than it
// stay at the tail unless the snapshot was short, meaning it covered
// everything.
func (s *Store) LoadSnapshot(ctx context.Context, limit int) error {
	epoch := s.currentEpoch()

	var (
		snap  []domain.Notification
		count = -1
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.api.FetchNotifications(gctx, limit)
		if err != nil {
			return fmt.Errorf("fetch notifications: %w", err)
		}
		snap = list
		return nil
	})
	g.Go(func() error {
		n, err := s.api.FetchUnreadCount(gctx)
		if err != nil {
			s.logger.Warn("unread count fetch failed", "err", err)
			return nil
		}
		count = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("discarding stale snapshot")
		return ErrStale
	}
	s.items = merge(s.items, snap, limit)
	s.recount()
	if count >= 0 {
		s.remoteUnread = count
		if count < s.unread {
			s.logger.Debug("server unread below local", "server", count, "local", s.unread)
		}
	}
	change := s.changeLocked(ReasonSnapshot)
	s.mu.Unlock()

	s.subs.Publish(change)
	return nil
}

// IngestPush puts a channel-delivered entity at the head as unread and trims
// the list to the window. An id already present is updated in place and
// does not count twice. It reports whether a new entry was added.
func (s *Store) IngestPush(n domain.Notification) bool {
	if n.NotificationID == "" {
		return false
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	if i := s.indexOf(n.NotificationID); i >= 0 {
		n.IsRead = s.items[i].IsRead
		s.items[i] = n
		change := s.changeLocked(ReasonPush)
		s.mu.Unlock()
		s.logger.Debug("push duplicates loaded entry", "notification_id", n.NotificationID)
		s.subs.Publish(change)
		return false
	}
	n.IsRead = false
	s.items = append([]domain.Notification{n}, s.items...)
	if len(s.items) > s.window {
		s.items = s.items[:s.window:s.window]
	}
	s.remoteUnread++
	s.recount()
	change := s.changeLocked(ReasonPush)
	s.mu.Unlock()

	s.subs.Publish(change)
	return true
}

// MarkRead flips the entry to read and acknowledges it in the background.
// A failed acknowledgement is logged and not rolled back. Calling it for an
// entry that is already read changes nothing and reports false.
func (s *Store) MarkRead(ctx context.Context, notificationID string) bool {
	if notificationID == "" {
		return false
	}
	s.mu.Lock()
	i := s.indexOf(notificationID)
	if i >= 0 && s.items[i].IsRead {
		s.mu.Unlock()
		return false
	}
	changed := i >= 0
	var change Change
	if changed {
		s.items[i].IsRead = true
		s.unread = max(s.unread-1, 0)
		s.remoteUnread = max(s.remoteUnread-1, 0)
		change = s.changeLocked(ReasonRead)
	}
	epoch := s.epoch
	s.mu.Unlock()

	if changed {
		s.subs.Publish(change)
	}
	s.ack(ctx, epoch, "mark read", func(ctx context.Context) error {
		return s.api.MarkNotificationRead(ctx, notificationID)
	}, "notification_id", notificationID)
	return changed
}

// MarkAllRead flips every loaded entry and zeroes the counts, then
// acknowledges in the background.
func (s *Store) MarkAllRead(ctx context.Context) {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.unread = 0
	s.remoteUnread = 0
	change := s.changeLocked(ReasonReadAll)
	epoch := s.epoch
	s.mu.Unlock()

	s.subs.Publish(change)
	s.ack(ctx, epoch, "mark all read", s.api.MarkAllRead)
}

// Reset drops all state. In-flight snapshot results are discarded.
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.items = nil
	s.unread = 0
	s.remoteUnread = 0
	change := s.changeLocked(ReasonReset)
	s.mu.Unlock()
	s.subs.Publish(change)
}

// Wait blocks until background acknowledgements finish.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Latest returns the newest notification known to the server or pushed
// since, or nil when there is none.
func (s *Store) Latest(ctx context.Context) (*domain.Notification, error) {
	list, err := s.api.FetchNotifications(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch latest notification: %w", err)
	}
	var latest *domain.Notification
	if len(list) > 0 {
		n := list[0]
		latest = &n
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) > 0 && (latest == nil || s.items[0].CreatedAt.After(latest.CreatedAt)) {
		n := s.items[0]
		latest = &n
	}
	return latest, nil
}

func (s *Store) ack(ctx context.Context, epoch uint64, what string, call func(context.Context) error, attrs ...any) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ackTimeout)
		defer cancel()
		err := call(ackCtx)
		if s.currentEpoch() != epoch {
			s.logger.Debug(what+" completed after reset", append(attrs, "err", err)...)
			return
		}
		if err != nil {
			s.logger.Warn(what+" not acknowledged", append(attrs, "err", err)...)
		}
	}()
}

func (s *Store) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Store) indexOf(notificationID string) int {
	for i := range s.items {
		if s.items[i].NotificationID == notificationID {
			return i
		}
	}
	return -1
}

func (s *Store) recount() {
	n := 0
	for i := range s.items {
		if !s.items[i].IsRead {
			n++
		}
	}
	s.unread = n
}

func (s *Store) changeLocked(reason string) Change {
	return Change{
		Reason: reason,
		Items:  append([]domain.Notification(nil), s.items...),
		Unread: s.unread,
	}
}
