// Package middleware provides HTTP middleware shared by handler packages.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/docvault/pkg/httputil"
	"github.com/platinummonkey/docvault/pkg/roles"
)

type contextKey string

const userContextKey contextKey = "docvault.user"

// AuthMiddleware resolves the authenticated user from a Bearer API token.
// Authentication strategy beyond token lookup (SSO, sessions) is a
// deployment concern layered in front of this service.
type AuthMiddleware struct {
	store    *roles.Store
	optional bool
}

// NewAuthMiddleware creates the token authentication middleware. With
// optional set, unauthenticated requests pass through with no user attached.
func NewAuthMiddleware(store *roles.Store, optional bool) *AuthMiddleware {
	return &AuthMiddleware{store: store, optional: optional}
}

// Handler wraps an HTTP handler with token authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		user, err := m.store.ResolveToken(r.Context(), token)
		if err != nil {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser attaches a user to the context.
func WithUser(ctx context.Context, user *roles.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUser returns the authenticated user for the request, nil if none.
func GetUser(r *http.Request) *roles.User {
	user, _ := r.Context().Value(userContextKey).(*roles.User)
	return user
}
