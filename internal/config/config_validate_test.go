// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"unknown environment", func(c *Config) { c.Server.Environment = "qa" }, "ENVIRONMENT"},
		{"ping too fast", func(c *Config) { c.Supervisor.PingInterval = time.Millisecond }, "PING_INTERVAL"},
		{"zero max skip", func(c *Config) { c.Supervisor.MaxPingSkip = 0 }, "MAX_PING_SKIP"},
		{"no default driver", func(c *Config) { c.Driver.Default = " " }, "DEFAULT_DRIVER"},
		{"no store path", func(c *Config) { c.Store.Path = "" }, "STORE_PATH"},
		{"in-memory store needs no path", func(c *Config) { c.Store.Path = ""; c.Store.InMemory = true }, ""},
		{"snapshot too fast", func(c *Config) { c.Store.SnapshotInterval = time.Millisecond }, "SNAPSHOT_INTERVAL"},
		{"nats bad url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.EmbeddedServer = false
			c.NATS.URL = "http://broker:4222"
		}, "NATS_URL"},
		{"nats external ok", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.EmbeddedServer = false
			c.NATS.URL = "nats://broker:4222"
		}, ""},
		{"nats no prefix", func(c *Config) { c.NATS.Enabled = true; c.NATS.SubjectPrefix = "" }, "NATS_SUBJECT_PREFIX"},
		{"jwt short secret", func(c *Config) { c.Security.AuthMode = "jwt"; c.Security.JWTSecret = "short" }, "JWT_SECRET"},
		{"jwt ok", func(c *Config) {
			c.Security.AuthMode = "jwt"
			c.Security.JWTSecret = strings.Repeat("k", 32)
		}, ""},
		{"jwt zero ttl", func(c *Config) {
			c.Security.AuthMode = "jwt"
			c.Security.JWTSecret = strings.Repeat("k", 32)
			c.Security.TokenTTL = 0
		}, "TOKEN_TTL"},
		{"no auth in production", func(c *Config) { c.Server.Environment = "production" }, "AUTH_MODE"},
		{"unknown auth mode", func(c *Config) { c.Security.AuthMode = "basic" }, "AUTH_MODE"},
		{"bad rate limit", func(c *Config) { c.Security.RateLimitReqs = 0 }, "RATE_LIMIT_REQUESTS"},
		{"rate limit disabled", func(c *Config) { c.Security.RateLimitReqs = 0; c.Security.RateLimitDisabled = true }, ""},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEncryptionSecret(t *testing.T) {
	s := SecurityConfig{JWTSecret: "jwt"}
	if s.EncryptionSecret() != "jwt" {
		t.Error("should fall back to JWT secret")
	}
	s.CredentialSecret = "cred"
	if s.EncryptionSecret() != "cred" {
		t.Error("credential secret should win")
	}
}
