// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = strings.Repeat("s", 32)

func newManager(t *testing.T, ttl time.Duration) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(testSecret, ttl)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func TestNewJWTManagerRejectsWeakSecret(t *testing.T) {
	if _, err := NewJWTManager("short", time.Hour); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("expected ErrWeakSecret, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := newManager(t, time.Hour)

	token, err := m.GenerateToken("hmi-1", RoleOperator)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "hmi-1" || !claims.CanOperate() {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := m.GenerateToken("x", "admin"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}

func TestValidateTokenFailures(t *testing.T) {
	m := newManager(t, time.Hour)
	other, _ := NewJWTManager(strings.Repeat("o", 32), time.Hour)
	foreign, _ := other.GenerateToken("x", RoleViewer)

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role: RoleViewer,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))

	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Role: "root"}).SignedString([]byte(testSecret))

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleOperator}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"wrong secret": foreign,
		"expired":      expired,
		"unknown role": badRole,
		"alg none":     unsigned,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := m.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	m := newManager(t, time.Hour)
	viewer, _ := m.GenerateToken("v", RoleViewer)
	operator, _ := m.GenerateToken("o", RoleOperator)

	mw := NewMiddleware(m)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	read := mw.Authenticate(ok)
	write := mw.Authenticate(mw.RequireOperator(ok))

	tests := []struct {
		name    string
		handler http.Handler
		setup   func(*http.Request)
		want    int
	}{
		{"no token", read, func(*http.Request) {}, http.StatusUnauthorized},
		{"basic scheme", read, func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized},
		{"bad token", read, func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"viewer reads", read, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+viewer) }, http.StatusNoContent},
		{"cookie", read, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: viewer}) }, http.StatusNoContent},
		{"query on plain request", read, func(r *http.Request) { r.URL.RawQuery = "access_token=" + viewer }, http.StatusUnauthorized},
		{"query on upgrade", read, func(r *http.Request) {
			r.Header.Set("Upgrade", "websocket")
			r.URL.RawQuery = "access_token=" + viewer
		}, http.StatusNoContent},
		{"viewer writes", write, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+viewer) }, http.StatusForbidden},
		{"operator writes", write, func(r *http.Request) { r.Header.Set("Authorization", "bearer "+operator) }, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	mw := NewMiddleware(nil)
	if mw.Enabled() {
		t.Fatal("nil manager should disable auth")
	}
	var claims *Claims
	h := mw.Authenticate(mw.RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = ClaimsFromContext(r.Context())
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK || !claims.CanOperate() {
		t.Errorf("status = %d claims = %+v", rec.Code, claims)
	}
}
