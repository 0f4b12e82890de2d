// Package portalapi is the HTTP client for the portal's session, feed,
// offer and device endpoints.
package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-hr-sync/internal/domain"
)

const maxErrorBody = 4 << 10

// Client talks to the portal REST API. The bearer token is swapped by the
// session manager on login and logout.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "portalapi"),
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends an authenticated request with the client's current token.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.send(ctx, method, path, c.Token(), body, out)
}

// send issues the request and decodes a 2xx JSON body into out when out is
// non-nil. An empty token sends the request without Authorization.
func (c *Client) send(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	var ae apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &ae) == nil {
		if ae.Error != "" {
			msg = ae.Error
		} else if ae.Message != "" {
			msg = ae.Message
		}
	}
	var kind error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = domain.ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		kind = domain.ErrForbidden
	case resp.StatusCode == http.StatusNotFound:
		kind = domain.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		kind = domain.ErrConflict
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		kind = domain.ErrBadRequest
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		kind = domain.ErrUnavailable
	default:
		kind = errors.New("unexpected status")
	}
	return fmt.Errorf("%s %s: %d %s: %w", method, path, resp.StatusCode, msg, kind)
}
