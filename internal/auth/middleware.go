// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/opclink/internal/logging"
)

type contextKey string

// ClaimsContextKey holds the *Claims of an authenticated request.
const ClaimsContextKey contextKey = "claims"

// tokenQueryParam carries the token on websocket upgrades, since browsers
// cannot set headers on them.
const tokenQueryParam = "access_token"

var (
	errMissingToken = errors.New("missing token")
	errBadHeader    = errors.New("invalid authorization header")
)

// Middleware authenticates API requests. With a nil manager every request
// passes as an operator, which is how AUTH_MODE=none behaves.
type Middleware struct {
	jwt *JWTManager
}

// NewMiddleware creates the middleware. Pass nil to disable authentication.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwt: jwtManager}
}

// Enabled reports whether tokens are checked.
func (m *Middleware) Enabled() bool { return m.jwt != nil }

// Authenticate rejects requests without a valid token and stores the claims
// in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.jwt == nil {
			ctx := context.WithValue(r.Context(), ClaimsContextKey, &Claims{Role: RoleOperator})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token, err := extractToken(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="opclink"`)
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}
		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Token validation failed")
			w.Header().Set("WWW-Authenticate", `Bearer realm="opclink", error="invalid_token"`)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOperator rejects authenticated requests whose role may not change
// the tree. It must run after Authenticate.
func (m *Middleware) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ClaimsFromContext(r.Context()).CanOperate() {
			http.Error(w, "Forbidden: operator role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext returns the claims stored by Authenticate, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsContextKey).(*Claims)
	return claims
}

// extractToken reads the bearer token from the Authorization header, the
// token cookie, or the access_token query parameter of a websocket upgrade.
func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", errBadHeader
		}
		return token, nil
	}
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get(tokenQueryParam); token != "" {
			return token, nil
		}
	}
	return "", errMissingToken
}
