package jwtinfra

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/go-hr-sync/internal/config"
	"github.com/go-hr-sync/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "hr-portal"

// Claims holds the JWT payload fields. The session id doubles as the token
// id so signing out one session revokes exactly its tokens.
type Claims struct {
	UserID    string `json:"user_id"`
	DeviceID  string `json:"device_id"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Provider signs and verifies RS256 JWTs.
type Provider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	expiry     time.Duration
	parser     *jwt.Parser
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return newProvider(privKey, pubKey, cfg.JWTExpiry), nil
}

// NewProviderFromKey builds a provider around an in-memory key pair.
func NewProviderFromKey(key *rsa.PrivateKey, expiry time.Duration) *Provider {
	return newProvider(key, &key.PublicKey, expiry)
}

func newProvider(priv *rsa.PrivateKey, pub *rsa.PublicKey, expiry time.Duration) *Provider {
	return &Provider{
		privateKey: priv,
		publicKey:  pub,
		expiry:     expiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

func (p *Provider) Sign(userID, deviceID, role, sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		DeviceID:  deviceID,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(p.privateKey)
}

// Verify checks signature, issuer and expiry. Every failure wraps
// domain.ErrUnauthorized.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := p.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify token: %v: %w", err, domain.ErrUnauthorized)
	}
	if !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("invalid token claims: %w", domain.ErrUnauthorized)
	}
	return claims, nil
}
