package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/convoshare/convoshare/internal/auth"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal returns a middleware that requires a valid Bearer token and puts
// the authenticated principal in the request context.
func Principal(manager *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			principal, err := manager.ValidatePrincipal(token)
			if err != nil {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom extracts the authenticated principal from a request context.
func PrincipalFrom(ctx context.Context) (string, bool) {
	principal, ok := ctx.Value(principalKey).(string)
	return principal, ok && principal != ""
}

// WithPrincipal returns a context carrying a principal. Used by tests.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}
