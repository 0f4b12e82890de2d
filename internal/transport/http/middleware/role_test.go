package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-hr-sync/internal/domain"
	jwtinfra "github.com/go-hr-sync/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
)

func withRole(role string) *http.Request {
	ctx := WithClaims(context.Background(), &jwtinfra.Claims{Role: role})
	return httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
}

func TestRequireRole_NoClaimsInContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRole_WrongRole(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, withRole(domain.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireRole_CorrectRole(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, withRole(domain.RoleAdmin))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireRole_MultipleAllowedRoles(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin, domain.RoleEmployee)(http.HandlerFunc(okHandler)).ServeHTTP(rr, withRole(domain.RoleEmployee))
	assert.Equal(t, http.StatusOK, rr.Code)
}
