// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package config

import "time"

// Config is the complete process configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Discovery  DiscoveryConfig  `koanf:"discovery"`
	Driver     DriverConfig     `koanf:"driver"`
	Store      StoreConfig      `koanf:"store"`
	NATS       NATSConfig       `koanf:"nats"`
	WebSocket  WebSocketConfig  `koanf:"websocket"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// SupervisorConfig tunes every connection supervisor.
type SupervisorConfig struct {
	// PingInterval is the health-check period of a connected server.
	PingInterval time.Duration `koanf:"ping_interval"`

	// MaxPingSkip caps the back-off after a lost connection, in ping cycles.
	MaxPingSkip int `koanf:"max_ping_skip"`

	// ConnectTimeout bounds one connect attempt.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// DiscoveryConfig controls the "add server" directory lookup.
type DiscoveryConfig struct {
	Enabled                 bool          `koanf:"enabled"`
	Timeout                 time.Duration `koanf:"timeout"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerOpenTimeout      time.Duration `koanf:"breaker_open_timeout"`
	BreakerInterval         time.Duration `koanf:"breaker_interval"`
}

// DriverConfig selects protocol bindings.
type DriverConfig struct {
	// Default is used for servers added without naming a driver.
	Default string `koanf:"default"`

	// SimItems is the item list announced by the sim driver.
	SimItems string `koanf:"sim_items"`

	// OPCUAPort is the port used to reach endpoint hosts.
	OPCUAPort int `koanf:"opcua_port"`
}

// StoreConfig holds the tree snapshot store settings.
type StoreConfig struct {
	Path             string        `koanf:"path"`
	InMemory         bool          `koanf:"in_memory"`
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
}

// NATSConfig controls value event publishing.
type NATSConfig struct {
	// Enabled publishes every value change to NATS.
	Enabled bool `koanf:"enabled"`

	// URL of the NATS server. Ignored when EmbeddedServer is true.
	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process nats-server.
	EmbeddedServer bool   `koanf:"embedded_server"`
	EmbeddedHost   string `koanf:"embedded_host"`
	EmbeddedPort   int    `koanf:"embedded_port"`

	// SubjectPrefix is prepended to the node path of each update.
	SubjectPrefix string `koanf:"subject_prefix"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// WebSocketConfig tunes the live subscription stream.
type WebSocketConfig struct {
	// MessagesPerSecond limits client requests per connection.
	MessagesPerSecond float64 `koanf:"messages_per_second"`
	Burst             int     `koanf:"burst"`
}

// SecurityConfig holds API authentication and credential encryption.
type SecurityConfig struct {
	// AuthMode is none or jwt.
	AuthMode  string `koanf:"auth_mode"`
	JWTSecret string `koanf:"jwt_secret"`

	// TokenTTL is the lifetime of tokens issued with -issue-token.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// CredentialSecret keys the encryption of stored endpoint passwords.
	// Falls back to JWTSecret when empty.
	CredentialSecret string `koanf:"credential_secret"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller adds file:line to every entry.
	Caller bool `koanf:"caller"`
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// EncryptionSecret returns the secret used for stored credentials.
func (s SecurityConfig) EncryptionSecret() string {
	if s.CredentialSecret != "" {
		return s.CredentialSecret
	}
	return s.JWTSecret
}
