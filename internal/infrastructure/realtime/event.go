package realtime

import (
	"encoding/json"

	"github.com/go-hr-sync/internal/domain"
)

// Wire ops.
const (
	OpJoin            = "join"
	OpNewNotification = "new_notification"
)

// OpConnected is dispatched locally after every successful (re)connection.
// It never travels over the wire.
const OpConnected = "connected"

// Event is the wire envelope shared with the portal hub.
type Event struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

type JoinData struct {
	UserID string `json:"userId"`
}

// Message is what subscribers receive. Notification is set for
// OpNewNotification; Reconnect is set for OpConnected when the connection
// replaces a dropped one.
type Message struct {
	Op           string
	Seq          int64
	Notification *domain.Notification
	Reconnect    bool
	Raw          json.RawMessage
}
