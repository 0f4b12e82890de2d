// Package session owns the lifecycle of the signed-in portal session on this
// device: restore from local storage, credential and OTP login, background
// validation and logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-hr-sync/internal/application/push"
	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/pkg/observer"
	"github.com/go-hr-sync/internal/pkg/validate"
)

const (
	defaultValidateTimeout = 10 * time.Second
	serverLogoutTimeout    = 5 * time.Second
)

// Transition reasons carried by Event.
const (
	ReasonRestore      = "restore"
	ReasonLogin        = "login"
	ReasonValidated    = "validated"
	ReasonUnauthorized = "unauthorized"
	ReasonLogout       = "logout"
)

type authAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error)
	RequestOTP(ctx context.Context, mobile string) error
	LoginWithOTP(ctx context.Context, req domain.OTPLogin) (*domain.Session, error)
	Validate(ctx context.Context, token string) (*domain.Profile, error)
	Logout(ctx context.Context, token string) error
	SetToken(token string)
}

type sessionStore interface {
	LoadSession(ctx context.Context) (*domain.Session, error)
	SaveSession(ctx context.Context, sess domain.Session) error
	SaveProfile(ctx context.Context, p domain.Profile) error
	ClearSession(ctx context.Context) error
	DeviceID(ctx context.Context) (string, error)
}

type channel interface {
	Connect(userID, token string)
	Disconnect()
}

type pushRegistrar interface {
	Register(ctx context.Context) push.Outcome
}

// Event is published on every state transition. Session is nil once the
// state is unauthenticated.
type Event struct {
	State   domain.SessionState
	Session *domain.Session
	Reason  string
}

type ManagerDeps struct {
	API     authAPI
	Store   sessionStore
	Channel channel
	Push    pushRegistrar // optional

	ValidateTimeout time.Duration
	// RevalidateInterval re-runs validation while a session is active.
	// Zero disables it.
	RevalidateInterval time.Duration
	Logger             *slog.Logger
}

type Manager struct {
	api             authAPI
	store           sessionStore
	channel         channel
	push            pushRegistrar
	validateTimeout time.Duration
	revalidateEvery time.Duration
	logger          *slog.Logger
	subs            *observer.Registry[Event]
	wg              sync.WaitGroup

	// tx serializes transitions: the store write, the published event and
	// channel side effects of one transition never interleave with another.
	// Lock order is tx, then mu.
	tx sync.Mutex

	mu             sync.Mutex
	state          domain.SessionState
	current        *domain.Session
	epoch          uint64
	activated      bool
	stopRevalidate context.CancelFunc
}

func NewManager(deps ManagerDeps) *Manager {
	if deps.ValidateTimeout <= 0 {
		deps.ValidateTimeout = defaultValidateTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		api:             deps.API,
		store:           deps.Store,
		channel:         deps.Channel,
		push:            deps.Push,
		validateTimeout: deps.ValidateTimeout,
		revalidateEvery: deps.RevalidateInterval,
		logger:          deps.Logger.With("component", "session"),
		subs:            observer.New[Event](),
		state:           domain.StateUnauthenticated,
	}
}

func (m *Manager) Subscribe(fn func(Event)) string { return m.subs.Subscribe(fn) }

func (m *Manager) Unsubscribe(token string) bool { return m.subs.Unsubscribe(token) }

func (m *Manager) SubscribeScoped(ctx context.Context, fn func(Event)) func() {
	return m.subs.SubscribeScoped(ctx, fn)
}

func (m *Manager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the active session, or nil.
func (m *Manager) Current() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

// Restore activates a persisted session without waiting for the server and
// validates it in the background. It reports whether a session was found.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	sess, err := m.store.LoadSession(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}

	m.tx.Lock()
	ev, epoch := m.begin(sess, ReasonRestore)
	m.subs.Publish(ev)
	m.tx.Unlock()
	m.logger.Info("session restored", "user_id", sess.UserID)

	m.validateAsync(ctx, epoch, sess.Token)
	return true, nil
}

func (m *Manager) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	if err := validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	if creds.DeviceUUID == nil {
		creds.DeviceUUID = m.deviceID(ctx)
	}
	sess, err := m.api.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return m.establish(ctx, sess)
}

// RequestOTP asks the portal to send a one-time code to mobile.
func (m *Manager) RequestOTP(ctx context.Context, mobile string) error {
	if err := validate.Struct(domain.OTPRequest{Mobile: mobile}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	if err := m.api.RequestOTP(ctx, mobile); err != nil {
		return fmt.Errorf("request otp: %w", err)
	}
	return nil
}

func (m *Manager) LoginWithOTP(ctx context.Context, mobile, otp string) (*domain.Session, error) {
	req := domain.OTPLogin{Mobile: mobile, OTP: otp}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	req.DeviceUUID = m.deviceID(ctx)
	sess, err := m.api.LoginWithOTP(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("login with otp: %w", err)
	}
	return m.establish(ctx, sess)
}

// Logout clears the persisted session and disconnects the channel. Calling
// it without an active session is a no-op apart from the cleanup itself.
func (m *Manager) Logout(ctx context.Context) error {
	// Ending first makes in-flight validations stale before they can commit.
	token, wasActive, epoch := m.end()

	m.tx.Lock()
	if m.supersededSince(epoch) {
		// A newer session owns the store and the channel now.
		m.tx.Unlock()
		m.serverLogout(ctx, token, wasActive)
		return nil
	}
	m.channel.Disconnect()
	m.api.SetToken("")
	err := m.store.ClearSession(ctx)
	if wasActive {
		m.subs.Publish(Event{State: domain.StateUnauthenticated, Reason: ReasonLogout})
	}
	m.tx.Unlock()

	if !wasActive {
		return wrapClear(err)
	}
	m.logger.Info("logged out")
	m.serverLogout(ctx, token, true)
	return wrapClear(err)
}

func (m *Manager) serverLogout(ctx context.Context, token string, active bool) {
	if !active || token == "" {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverLogoutTimeout)
		defer cancel()
		if err := m.api.Logout(lctx, token); err != nil {
			m.logger.Debug("server logout failed", "err", err)
		}
	}()
}

// Revalidate re-checks the active session with the server and waits for the
// answer.
func (m *Manager) Revalidate(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return fmt.Errorf("revalidate: %w", domain.ErrUnauthorized)
	}
	epoch, token := m.epoch, m.current.Token
	m.mu.Unlock()
	return m.validate(ctx, epoch, token)
}

// Wait blocks until background work started by the manager has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops periodic revalidation and waits for background work. The
// persisted session is kept.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.stopRevalidate != nil {
		m.stopRevalidate()
		m.stopRevalidate = nil
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) establish(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	m.tx.Lock()
	if err := m.store.SaveSession(ctx, *sess); err != nil {
		m.tx.Unlock()
		return nil, fmt.Errorf("persist session: %w", err)
	}
	ev, epoch := m.begin(sess, ReasonLogin)
	m.subs.Publish(ev)
	m.activate(ctx, epoch)
	m.tx.Unlock()
	m.logger.Info("logged in", "user_id", sess.UserID)

	m.validateAsync(ctx, epoch, sess.Token)
	out := *sess
	return &out, nil
}

// begin installs sess as the active, not yet validated session.
func (m *Manager) begin(sess *domain.Session, reason string) (Event, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopRevalidate != nil {
		m.stopRevalidate()
		m.stopRevalidate = nil
	}
	m.epoch++
	s := *sess
	m.current = &s
	m.state = domain.StateAuthenticatedUnvalidated
	m.activated = false
	m.api.SetToken(s.Token)
	out := s
	return Event{State: m.state, Session: &out, Reason: reason}, m.epoch
}

// end drops the active session and reports the token it held and the
// epoch it moved to.
func (m *Manager) end() (string, bool, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.endLocked()
	return token, ok, m.epoch
}

// supersededSince reports whether a session was established after epoch.
func (m *Manager) supersededSince(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch != epoch && m.current != nil
}

func (m *Manager) isCurrent(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

func (m *Manager) endLocked() (string, bool) {
	if m.stopRevalidate != nil {
		m.stopRevalidate()
		m.stopRevalidate = nil
	}
	m.epoch++
	if m.current == nil {
		return "", false
	}
	token := m.current.Token
	m.current = nil
	m.state = domain.StateUnauthenticated
	m.activated = false
	return token, true
}

// activate connects the channel and registers for push once per session.
// The caller holds tx.
func (m *Manager) activate(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.activated || m.current == nil {
		m.mu.Unlock()
		return
	}
	m.activated = true
	userID, token := m.current.UserID, m.current.Token
	m.startRevalidateLocked(epoch)
	m.mu.Unlock()

	m.channel.Connect(userID, token)
	if m.push == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.push.Register(context.WithoutCancel(ctx))
	}()
}

func (m *Manager) validateAsync(ctx context.Context, epoch uint64, token string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.validate(context.WithoutCancel(ctx), epoch, token); err != nil {
			m.logger.Debug("background validation", "err", err)
		}
	}()
}

func (m *Manager) validate(ctx context.Context, epoch uint64, token string) error {
	vctx, cancel := context.WithTimeout(ctx, m.validateTimeout)
	defer cancel()
	profile, err := m.api.Validate(vctx, token)
	if err == nil && profile == nil {
		err = fmt.Errorf("empty profile: %w", domain.ErrUnavailable)
	}

	m.tx.Lock()
	defer m.tx.Unlock()
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Debug("discarding stale validation result")
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		if errors.Is(err, domain.ErrUnauthorized) {
			m.teardownTx(ctx, epoch)
			return fmt.Errorf("validate session: %w", err)
		}
		m.logger.Warn("session validation failed, keeping session", "err", err)
		return fmt.Errorf("validate session: %w", err)
	}
	sess := *m.current
	sess.Profile = *profile
	if profile.UserID != "" {
		sess.UserID = profile.UserID
	}
	m.current = &sess
	promoted := m.state != domain.StateAuthenticatedValidated
	m.state = domain.StateAuthenticatedValidated
	m.mu.Unlock()

	if err := m.store.SaveProfile(ctx, sess.Profile); err != nil {
		m.logger.Error("persist profile", "err", err)
	}
	// A logout that ended the session during the write clears the store once
	// tx is released; nothing may be announced for it.
	if !m.isCurrent(epoch) {
		m.logger.Debug("session ended while saving profile")
		return nil
	}
	if promoted {
		m.subs.Publish(Event{State: domain.StateAuthenticatedValidated, Session: &sess, Reason: ReasonValidated})
		m.logger.Info("session validated", "user_id", sess.UserID)
	}
	m.activate(ctx, epoch)
	return nil
}

// teardownTx ends the session after the server rejected its token. The
// caller holds tx.
func (m *Manager) teardownTx(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	_, active := m.endLocked()
	m.mu.Unlock()
	if !active {
		return
	}

	ctx = context.WithoutCancel(ctx)
	m.channel.Disconnect()
	m.api.SetToken("")
	if err := m.store.ClearSession(ctx); err != nil {
		m.logger.Error("clear session", "err", err)
	}
	m.logger.Warn("session rejected by server, signed out")
	m.subs.Publish(Event{State: domain.StateUnauthenticated, Reason: ReasonUnauthorized})
}

func (m *Manager) startRevalidateLocked(epoch uint64) {
	if m.revalidateEvery <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopRevalidate = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.revalidateEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.mu.Lock()
				stale := m.epoch != epoch || m.current == nil
				token := ""
				if !stale {
					token = m.current.Token
				}
				m.mu.Unlock()
				if stale {
					return
				}
				_ = m.validate(ctx, epoch, token)
			}
		}
	}()
}

func (m *Manager) deviceID(ctx context.Context) *string {
	id, err := m.store.DeviceID(ctx)
	if err != nil {
		m.logger.Warn("device id unavailable", "err", err)
		return nil
	}
	return &id
}

func wrapClear(err error) error {
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
