// Package auth issues and revokes portal sessions.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-hr-sync/internal/domain"
	pkgdevice "github.com/go-hr-sync/internal/pkg/device"
	"github.com/go-hr-sync/internal/pkg/id"
	pkgtoken "github.com/go-hr-sync/internal/pkg/token"
	"github.com/go-hr-sync/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const otpDigits = 6

// Result is what a successful login hands back to the device.
type Result struct {
	Bearer  string
	Profile domain.Profile
}

type Service interface {
	Login(ctx context.Context, creds domain.Credentials) (*Result, error)
	RequestOTP(ctx context.Context, req domain.OTPRequest) error
	LoginWithOTP(ctx context.Context, req domain.OTPLogin) (*Result, error)
	// Current returns the profile behind an active session.
	Current(ctx context.Context, sessionID string) (*domain.Profile, error)
	// Active reports ErrUnauthorized for signed-out or unknown sessions.
	Active(ctx context.Context, sessionID string) error
	Logout(ctx context.Context, sessionID string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmployeeCode(ctx context.Context, code string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByMobile(ctx context.Context, mobile string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.SessionRecord) error
	Get(ctx context.Context, sessionID string) (*domain.SessionRecord, error)
	Disable(ctx context.Context, sessionID string) error
}

type deviceStore interface {
	GetByUUID(ctx context.Context, uuid string) (*domain.Device, error)
	Put(ctx context.Context, d *domain.Device) error
}

type verificationStore interface {
	Put(ctx context.Context, v *domain.UserVerification) error
	Take(ctx context.Context, userID, verType string) (*domain.UserVerification, error)
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type tokenSigner interface {
	Sign(userID, deviceID, role, sessionID string) (string, error)
}

type ServiceDeps struct {
	Users         userStore
	Sessions      sessionStore
	Devices       deviceStore
	Verifications verificationStore
	SMS           smsSender
	Tokens        tokenSigner
	OTPExpiry     time.Duration
	Logger        *slog.Logger
}

type service struct {
	users         userStore
	sessions      sessionStore
	devices       deviceStore
	verifications verificationStore
	sms           smsSender
	tokens        tokenSigner
	otpExpiry     time.Duration
	logger        *slog.Logger
}

func NewService(deps ServiceDeps) Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	expiry := deps.OTPExpiry
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	return &service{
		users:         deps.Users,
		sessions:      deps.Sessions,
		devices:       deps.Devices,
		verifications: deps.Verifications,
		sms:           deps.SMS,
		tokens:        deps.Tokens,
		otpExpiry:     expiry,
		logger:        logger.With("component", "auth"),
	}
}

var errInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)

func (s *service) Login(ctx context.Context, creds domain.Credentials) (*Result, error) {
	if err := validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	u, err := s.lookup(ctx, strings.TrimSpace(creds.Login))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !u.Enable {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, errInvalidCredentials
	}
	s.upgradeHash(ctx, u, creds.Password)
	return s.issue(ctx, u, creds.DeviceUUID)
}

// lookup accepts an email or an employee code.
func (s *service) lookup(ctx context.Context, login string) (*domain.User, error) {
	if strings.Contains(login, "@") {
		return s.users.GetByEmail(ctx, strings.ToLower(login))
	}
	return s.users.GetByEmployeeCode(ctx, strings.ToUpper(login))
}

// upgradeHash re-hashes passwords stored below the current bcrypt cost.
func (s *service) upgradeHash(ctx context.Context, u *domain.User, password string) {
	cost, err := bcrypt.Cost([]byte(u.PasswordHash))
	if err != nil || cost >= bcrypt.DefaultCost {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return
	}
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{"password_hash": string(hash)}); err != nil {
		s.logger.Warn("password rehash failed", "user_id", u.UserID, "err", err)
	}
}

// RequestOTP texts a login code. Unknown or disabled numbers succeed
// silently so the endpoint cannot be used to probe for employees.
func (s *service) RequestOTP(ctx context.Context, req domain.OTPRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	u, err := s.users.GetByMobile(ctx, req.Mobile)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("otp requested for unknown mobile")
			return nil
		}
		return err
	}
	if !u.Enable {
		return nil
	}

	code, err := pkgtoken.NewOTP(otpDigits)
	if err != nil {
		return err
	}
	v := &domain.UserVerification{
		UserID:    u.UserID,
		Type:      domain.VerificationOTP,
		Code:      code,
		ExpiresAt: time.Now().Add(s.otpExpiry).Unix(),
	}
	if err := s.verifications.Put(ctx, v); err != nil {
		return err
	}
	return s.sms.SendSMS(ctx, u.Mobile, "Your HR portal login code: "+code)
}

// LoginWithOTP consumes the pending code whether or not it matches, so each
// code gets a single guess.
func (s *service) LoginWithOTP(ctx context.Context, req domain.OTPLogin) (*Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	u, err := s.users.GetByMobile(ctx, req.Mobile)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid OTP: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	v, err := s.verifications.Take(ctx, u.UserID, domain.VerificationOTP)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid OTP: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(v.Code), []byte(req.OTP)) != 1 {
		return nil, fmt.Errorf("invalid OTP: %w", domain.ErrUnauthorized)
	}
	if v.ExpiresAt < time.Now().Unix() {
		return nil, fmt.Errorf("OTP expired: %w", domain.ErrUnauthorized)
	}
	if !u.Enable {
		return nil, errInvalidCredentials
	}
	return s.issue(ctx, u, req.DeviceUUID)
}

func (s *service) issue(ctx context.Context, u *domain.User, deviceUUID *string) (*Result, error) {
	dev, err := pkgdevice.Resolve(ctx, s.devices, deviceUUID, u.UserID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &domain.SessionRecord{
		SessionID: id.New(),
		UserID:    u.UserID,
		DeviceID:  dev.DeviceID,
		Enable:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Put(ctx, rec); err != nil {
		return nil, err
	}
	bearer, err := s.tokens.Sign(u.UserID, dev.DeviceID, u.Role, rec.SessionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session issued", "user_id", u.UserID, "session_id", rec.SessionID)
	return &Result{Bearer: bearer, Profile: u.Profile()}, nil
}

func (s *service) Active(ctx context.Context, sessionID string) error {
	_, err := s.activeSession(ctx, sessionID)
	return err
}

func (s *service) activeSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	rec, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("session unknown: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if !rec.Enable {
		return nil, fmt.Errorf("session signed out: %w", domain.ErrUnauthorized)
	}
	return rec, nil
}

func (s *service) Current(ctx context.Context, sessionID string) (*domain.Profile, error) {
	rec, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user removed: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if !u.Enable {
		return nil, fmt.Errorf("user disabled: %w", domain.ErrUnauthorized)
	}
	p := u.Profile()
	return &p, nil
}

// Logout is idempotent for sessions that no longer exist.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.Disable(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
