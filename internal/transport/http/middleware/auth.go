package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-hr-sync/internal/domain"
	jwtinfra "github.com/go-hr-sync/internal/infrastructure/jwt"
)

type contextKey string

const claimsKey contextKey = "claims"

type TokenVerifier interface {
	Verify(token string) (*jwtinfra.Claims, error)
}

// SessionGuard rejects tokens whose server-side session was signed out.
type SessionGuard interface {
	Active(ctx context.Context, sessionID string) error
}

// Auth validates the Bearer JWT and injects claims into the context. When
// guard is non-nil the token's session must still be active.
func Auth(verifier TokenVerifier, guard SessionGuard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := verifier.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if guard != nil {
				if err := guard.Active(r.Context(), claims.SessionID); err != nil {
					if errors.Is(err, domain.ErrUnauthorized) {
						writeJSONError(w, http.StatusUnauthorized, "session is not active")
						return
					}
					HTTPError(w, err)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func WithClaims(ctx context.Context, c *jwtinfra.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}
