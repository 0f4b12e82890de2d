package portalapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-hr-sync/internal/domain"
)

type countEnvelope struct {
	Count int `json:"count"`
}

// FetchNotifications returns the newest limit notifications in server order.
// Entries that fail to decode or carry no id are dropped.
func (c *Client) FetchNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	path := "/notifications"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(raw))
	for i, item := range raw {
		var n domain.Notification
		if err := json.Unmarshal(item, &n); err != nil {
			c.logger.Warn("skipping malformed notification", "index", i, "err", err)
			continue
		}
		if n.NotificationID == "" {
			c.logger.Warn("skipping notification without id", "index", i)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *Client) FetchUnreadCount(ctx context.Context) (int, error) {
	var env countEnvelope
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, &env); err != nil {
		return 0, err
	}
	if env.Count < 0 {
		return 0, nil
	}
	return env.Count, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	if notificationID == "" {
		return fmt.Errorf("mark read: empty id: %w", domain.ErrBadRequest)
	}
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(notificationID), nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

// FetchActiveOffers returns active offers newest first. Inactive or
// malformed entries are dropped.
func (c *Client) FetchActiveOffers(ctx context.Context) ([]domain.Offer, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/offers", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Offer, 0, len(raw))
	for i, item := range raw {
		var o domain.Offer
		if err := json.Unmarshal(item, &o); err != nil {
			c.logger.Warn("skipping malformed offer", "index", i, "err", err)
			continue
		}
		if o.OfferID == "" || !o.IsActive {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// RegisterPushToken associates a push endpoint with the current session.
func (c *Client) RegisterPushToken(ctx context.Context, req domain.RegisterPushTokenRequest) error {
	return c.do(ctx, http.MethodPut, "/devices/push-token", req, nil)
}
