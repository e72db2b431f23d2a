// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points config file lookup at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(ConfigPathEnvVar, "")
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Supervisor.PingInterval != 5*time.Second {
		t.Errorf("PingInterval = %v, want 5s", cfg.Supervisor.PingInterval)
	}
	if cfg.Supervisor.MaxPingSkip != 60 {
		t.Errorf("MaxPingSkip = %d, want 60", cfg.Supervisor.MaxPingSkip)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS should be disabled by default")
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		isolate(t)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Driver.Default != "opcua" {
			t.Errorf("Driver.Default = %q", cfg.Driver.Default)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "opclink.yaml")
		yaml := "supervisor:\n  ping_interval: 2s\n  max_ping_skip: 10\nstore:\n  in_memory: true\n"
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv(ConfigPathEnvVar, path)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Supervisor.PingInterval != 2*time.Second || cfg.Supervisor.MaxPingSkip != 10 {
			t.Errorf("supervisor = %+v", cfg.Supervisor)
		}
		if !cfg.Store.InMemory {
			t.Error("store.in_memory not applied")
		}
		if cfg.Supervisor.ConnectTimeout != 30*time.Second {
			t.Error("unset keys must keep their defaults")
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("HTTP_PORT", "9100")
		t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("NATS_ENABLED", "true")
		t.Setenv("NATS_SUBJECT_PREFIX", "plant.values")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9100 {
			t.Errorf("Port = %d, want 9100", cfg.Server.Port)
		}
		if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
			t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
		}
		if !cfg.NATS.Enabled || cfg.NATS.SubjectPrefix != "plant.values" {
			t.Errorf("nats = %+v", cfg.NATS)
		}
	})

	t.Run("invalid env fails validation", func(t *testing.T) {
		isolate(t)
		t.Setenv("LOG_LEVEL", "loud")
		if _, err := Load(); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct{ in, want string }{
		{"HTTP_PORT", "server.port"},
		{"PING_INTERVAL", "supervisor.ping_interval"},
		{"ENABLE_NATS", "nats.enabled"},
		{"STORE_PATH", "store.path"},
		{"HOME", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
