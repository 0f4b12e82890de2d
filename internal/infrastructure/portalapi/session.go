package portalapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-hr-sync/internal/domain"
)

type authEnvelope struct {
	Bearer  string          `json:"Bearer"`
	Profile *domain.Profile `json:"profile"`
}

type sessionEnvelope struct {
	Profile *domain.Profile `json:"profile"`
}

func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	var env authEnvelope
	if err := c.send(ctx, http.MethodPost, "/sessions/login", "", creds, &env); err != nil {
		return nil, err
	}
	return sessionFrom(env)
}

// RequestOTP asks the portal to text a login code to mobile.
func (c *Client) RequestOTP(ctx context.Context, mobile string) error {
	return c.send(ctx, http.MethodPost, "/sessions/otp/request", "", domain.OTPRequest{Mobile: mobile}, nil)
}

func (c *Client) LoginWithOTP(ctx context.Context, req domain.OTPLogin) (*domain.Session, error) {
	var env authEnvelope
	if err := c.send(ctx, http.MethodPost, "/sessions/otp", "", req, &env); err != nil {
		return nil, err
	}
	return sessionFrom(env)
}

// Validate checks token against the portal and returns the current profile.
func (c *Client) Validate(ctx context.Context, token string) (*domain.Profile, error) {
	var env sessionEnvelope
	if err := c.send(ctx, http.MethodGet, "/sessions", token, nil, &env); err != nil {
		return nil, err
	}
	if env.Profile == nil || env.Profile.UserID == "" {
		return nil, fmt.Errorf("validate: response without profile")
	}
	return env.Profile, nil
}

// Logout invalidates token on the server. Callers treat failures as best effort.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.send(ctx, http.MethodPost, "/sessions/logout", token, nil, nil)
}

func sessionFrom(env authEnvelope) (*domain.Session, error) {
	if env.Bearer == "" {
		return nil, fmt.Errorf("login response without token")
	}
	s := &domain.Session{Token: env.Bearer}
	if env.Profile != nil {
		s.Profile = *env.Profile
		s.UserID = env.Profile.UserID
	}
	return s, nil
}
