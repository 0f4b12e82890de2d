package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestSignVerify_RoundTrip(t *testing.T) {
	p := NewProviderFromKey(newKey(t), time.Hour)
	tok, err := p.Sign("u1", "d1", domain.RoleEmployee, "s1")
	require.NoError(t, err)

	claims, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "d1", claims.DeviceID)
	assert.Equal(t, domain.RoleEmployee, claims.Role)
	assert.Equal(t, "s1", claims.SessionID)
	assert.Equal(t, "s1", claims.ID)
}

func TestVerify_Expired(t *testing.T) {
	p := NewProviderFromKey(newKey(t), -time.Minute)
	tok, err := p.Sign("u1", "d1", domain.RoleEmployee, "s1")
	require.NoError(t, err)

	_, err = p.Verify(tok)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerify_OtherKey(t *testing.T) {
	tok, err := NewProviderFromKey(newKey(t), time.Hour).Sign("u1", "d1", domain.RoleEmployee, "s1")
	require.NoError(t, err)

	_, err = NewProviderFromKey(newKey(t), time.Hour).Verify(tok)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerify_RejectsHMAC(t *testing.T) {
	p := NewProviderFromKey(newKey(t), time.Hour)
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u1", SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tok, err := forged.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = p.Verify(tok)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerify_Garbage(t *testing.T) {
	_, err := NewProviderFromKey(newKey(t), time.Hour).Verify("not-a-token")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}
