// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/opclink/internal/auth"
	"github.com/tomtom215/opclink/internal/config"
	"github.com/tomtom215/opclink/internal/discovery"
	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/driver/opcua"
	"github.com/tomtom215/opclink/internal/driver/sim"
	"github.com/tomtom215/opclink/internal/events"
	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// errTokenSpec is returned for a malformed -issue-token argument.
var errTokenSpec = errors.New("token spec must be subject[:role]")

// registerDrivers replaces the self-registered factories with configured
// ones and checks that the default driver exists.
func registerDrivers(cfg config.DriverConfig) error {
	items := cfg.SimItems
	driver.Register(sim.Name, func() driver.Driver { return sim.NewWithItems(items) })

	ocfg := opcua.DefaultConfig()
	if cfg.OPCUAPort > 0 {
		ocfg.Port = cfg.OPCUAPort
	}
	driver.Register(opcua.Name, opcua.Factory(ocfg))

	if _, err := driver.Lookup(cfg.Default); err != nil {
		return fmt.Errorf("default driver: %w", err)
	}
	logging.Info().
		Strs("drivers", driver.Names()).
		Str("default", cfg.Default).
		Msg("Drivers registered")
	return nil
}

// newDiscoverer returns the OPC UA discovery client behind a circuit
// breaker, or nil when discovery is disabled.
func newDiscoverer(cfg *config.Config) discovery.Discoverer {
	if !cfg.Discovery.Enabled {
		logging.Info().Msg("Server discovery disabled, add server accepts manual ids only")
		return nil
	}
	return discovery.NewBreakerDiscoverer(
		opcua.Discoverer{Port: cfg.Driver.OPCUAPort},
		discovery.BreakerConfig{
			Name:                "opcua-discovery",
			Timeout:             cfg.Discovery.Timeout,
			MaxRequests:         1,
			Interval:            cfg.Discovery.BreakerInterval,
			OpenTimeout:         cfg.Discovery.BreakerOpenTimeout,
			ConsecutiveFailures: cfg.Discovery.BreakerFailureThreshold,
		},
	)
}

// newEventPublisher returns the NATS value publisher, or nil when NATS is
// disabled. The publisher starts under supervision.
func newEventPublisher(cfg config.NATSConfig, nodes *nodetree.Tree) *events.Publisher {
	if !cfg.Enabled {
		return nil
	}
	return events.NewPublisher(events.Config{
		URL:      cfg.URL,
		Embedded: cfg.EmbeddedServer,
		EmbeddedConfig: events.ServerConfig{
			Host: cfg.EmbeddedHost,
			Port: cfg.EmbeddedPort,
		},
		SubjectPrefix: cfg.SubjectPrefix,
	}, nodes)
}

// issueToken signs a token for spec, "subject" or "subject:role". The role
// defaults to viewer.
func issueToken(sec config.SecurityConfig, spec string) (string, error) {
	subject, role, hasRole := strings.Cut(strings.TrimSpace(spec), ":")
	if subject == "" {
		return "", errTokenSpec
	}
	if !hasRole || role == "" {
		role = auth.RoleViewer
	}
	m, err := auth.NewJWTManager(sec.JWTSecret, sec.TokenTTL)
	if err != nil {
		return "", err
	}
	return m.GenerateToken(subject, role)
}
