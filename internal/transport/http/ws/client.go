package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-hr-sync/internal/infrastructure/realtime"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	joinWait       = 10 * time.Second
	pongWait       = 90 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte

	once sync.Once
	done chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *client {
	return &client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump blocks until the connection ends. The first frame must be a join
// for the authenticated user; later frames are ignored apart from keeping
// the read deadline alive.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(joinWait))

	if !c.awaitJoin() {
		return
	}
	if !c.hub.add(c) {
		return
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	defaultPing := c.conn.PingHandler()
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return defaultPing(data)
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("unexpected close", "user_id", c.userID, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *client) awaitJoin() bool {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return false
	}
	var ev realtime.Event
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Op != realtime.OpJoin {
		c.hub.logger.Warn("first frame is not a join", "user_id", c.userID)
		return false
	}
	var jd realtime.JoinData
	if err := json.Unmarshal(ev.Data, &jd); err != nil || jd.UserID != c.userID {
		c.hub.logger.Warn("join for another user rejected", "user_id", c.userID, "join", jd.UserID)
		return false
	}
	return true
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
