package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-hr-sync/internal/domain"
)

// RequireRole admits requests whose token carries one of roles. It must run
// after Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				HTTPError(w, fmt.Errorf("no session: %w", domain.ErrUnauthorized))
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				HTTPError(w, fmt.Errorf("role %q: %w", claims.Role, domain.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
