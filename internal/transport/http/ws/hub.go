// Package ws is the portal side of the realtime channel. Connections
// authenticate with ?token= and only receive events after a join naming the
// token's own user.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-hr-sync/internal/infrastructure/realtime"
)

// Hub tracks joined connections by user. A user may hold several.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	closed  bool

	seq    atomic.Int64
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger.With("component", "ws"),
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("client joined", "user_id", c.userID, "connections", len(set))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	h.logger.Debug("client left", "user_id", c.userID, "connections", len(set))
}

// BroadcastToUser sends op to every joined connection of userID and returns
// how many connections it was queued on. Connections with a full send buffer
// are dropped; their device reconciles on reconnect.
func (h *Hub) BroadcastToUser(userID, op string, data any) int {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal event", "op", op, "err", err)
		return 0
	}
	msg, err := json.Marshal(realtime.Event{Op: op, Data: raw, Seq: h.seq.Add(1)})
	if err != nil {
		h.logger.Error("marshal envelope", "op", op, "err", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	queued := 0
	for c := range h.clients[userID] {
		if c.enqueue(msg) {
			queued++
			continue
		}
		h.logger.Warn("dropping slow client", "user_id", userID)
		c.close()
	}
	return queued
}

// Online reports how many joined connections userID holds.
func (h *Hub) Online(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Close disconnects every client and rejects new joins.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}
