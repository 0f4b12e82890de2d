// Package realtime owns the single persistent channel connection of the
// device. The connection reconnects forever with bounded exponential backoff
// and re-announces the user after every reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/pkg/observer"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10

	defaultReconnectMin = time.Second
	defaultReconnectMax = time.Minute

	// jitter is uniform in [0, backoff/jitterDivisor)
	jitterDivisor = 2
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Options struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// PingInterval of 0 disables heartbeats and read deadlines.
	PingInterval time.Duration
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
}

// Manager holds at most one live connection. Subscriber handlers run on the
// connection's reader goroutine and must not call Disconnect synchronously.
type Manager struct {
	opts   Options
	logger *slog.Logger
	subs   *observer.Registry[Message]
	state  atomic.Int32
	userID atomic.Value // string; readable from handlers without m.mu

	mu   sync.Mutex
	conn *connection
}

type connection struct {
	userID string
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	token string
	ws    *websocket.Conn
}

func NewManager(opts Options) *Manager {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = max(defaultReconnectMax, opts.ReconnectMin)
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger.With("component", "realtime"),
		subs:   observer.New[Message](),
	}
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// UserID returns the identity the live connection is scoped to, or "".
func (m *Manager) UserID() string {
	v, _ := m.userID.Load().(string)
	return v
}

func (m *Manager) Subscribe(fn func(Message)) string {
	return m.subs.Subscribe(fn)
}

func (m *Manager) Unsubscribe(token string) bool {
	return m.subs.Unsubscribe(token)
}

func (m *Manager) SubscribeScoped(ctx context.Context, fn func(Message)) func() {
	return m.subs.SubscribeScoped(ctx, fn)
}

// Connect starts the connection loop for userID. A live connection for the
// same user is reused, with token kept for the next reconnect. A connection
// scoped to another user is torn down first.
func (m *Manager) Connect(userID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.conn; c != nil {
		if c.userID == userID {
			c.mu.Lock()
			c.token = token
			c.mu.Unlock()
			return
		}
		m.logger.Info("switching channel identity", "from", c.userID, "to", userID)
		m.stop(c)
		m.conn = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{userID: userID, token: token, cancel: cancel, done: make(chan struct{})}
	m.conn = c
	m.userID.Store(userID)
	go m.run(ctx, c)
}

// Disconnect tears the connection down and clears it so a later Connect
// starts clean. Safe to call when nothing is connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return
	}
	m.stop(m.conn)
	m.conn = nil
	m.userID.Store("")
	m.logger.Info("channel disconnected")
}

func (m *Manager) stop(c *connection) {
	c.cancel()
	c.mu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.mu.Unlock()
	<-c.done
	m.setState(Disconnected)
}

func (m *Manager) run(ctx context.Context, c *connection) {
	defer close(c.done)

	backoff := m.opts.ReconnectMin
	connectedBefore := false
	for {
		m.setState(Connecting)
		ws, err := m.dial(ctx, c)
		if err == nil {
			start := time.Now()
			err = m.serve(ctx, c, ws, connectedBefore)
			connectedBefore = true
			// A connection dropped within ReconnectMin counts as a failed attempt.
			if time.Since(start) >= m.opts.ReconnectMin {
				backoff = m.opts.ReconnectMin
			}
		}
		if ctx.Err() != nil {
			return
		}
		m.setState(Disconnected)
		m.logger.Warn("channel lost, reconnecting", "user_id", c.userID, "backoff", backoff, "err", err)

		wait := backoff
		if half := int64(backoff) / jitterDivisor; half > 0 {
			wait += time.Duration(rand.Int64N(half)) //nolint:gosec // jitter only
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, m.opts.ReconnectMax)
	}
}

func (m *Manager) dial(ctx context.Context, c *connection) (*websocket.Conn, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse channel url: %w", err)
	}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, resp, err := m.opts.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial channel: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial channel: %w", err)
	}
	return ws, nil
}

// serve announces the user, dispatches OpConnected and reads until the
// connection drops or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, c *connection, ws *websocket.Conn, reconnect bool) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = ws.Close()
		return ctx.Err()
	}
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()
	}()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return ws.WriteMessage(messageType, data)
	}

	join, err := json.Marshal(JoinData{UserID: c.userID})
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Event{Op: OpJoin, Data: join})
	if err != nil {
		return err
	}
	if err := write(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	ws.SetReadLimit(maxMessageSize)
	if m.opts.PingInterval > 0 {
		pongWait := 3 * m.opts.PingInterval
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		go m.heartbeat(connCtx, write)
	}

	m.setState(Connected)
	m.logger.Info("channel connected", "user_id", c.userID, "reconnect", reconnect)
	m.subs.Publish(Message{Op: OpConnected, Reconnect: reconnect})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		m.dispatch(raw)
	}
}

func (m *Manager) heartbeat(ctx context.Context, write func(int, []byte) error) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				m.logger.Debug("heartbeat failed", "err", err)
				return
			}
		}
	}
}

func (m *Manager) dispatch(raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		m.logger.Warn("invalid channel frame", "err", err)
		return
	}
	msg := Message{Op: ev.Op, Seq: ev.Seq, Raw: ev.Data}
	if ev.Op == OpNewNotification {
		var n domain.Notification
		if err := json.Unmarshal(ev.Data, &n); err != nil || n.NotificationID == "" {
			m.logger.Warn("dropping malformed notification event", "seq", ev.Seq, "err", err)
			return
		}
		msg.Notification = &n
	}
	m.subs.Publish(msg)
}
