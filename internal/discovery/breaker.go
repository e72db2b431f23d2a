// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package discovery

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/metrics"
)

// BreakerConfig tunes the circuit breaker around a Discoverer.
type BreakerConfig struct {
	Name string

	// Timeout bounds a single discovery call.
	Timeout time.Duration

	// MaxRequests allowed while half-open.
	MaxRequests uint32

	// Interval after which closed-state counts reset.
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration

	// ConsecutiveFailures that trip the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "discovery",
		Timeout:             10 * time.Second,
		MaxRequests:         1,
		Interval:            time.Minute,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 3,
	}
}

// BreakerDiscoverer isolates a slow or unreachable discovery service. Once a
// host has failed repeatedly, calls fail fast until the breaker half-opens,
// so building an "add server" control never waits on a dead directory.
type BreakerDiscoverer struct {
	next    Discoverer
	cb      *gobreaker.CircuitBreaker[[]string]
	timeout time.Duration
	name    string
}

// NewBreakerDiscoverer wraps next.
func NewBreakerDiscoverer(next Discoverer, cfg BreakerConfig) *BreakerDiscoverer {
	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	threshold := cfg.ConsecutiveFailures

	cb := gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Discovery circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerDiscoverer{next: next, cb: cb, timeout: cfg.Timeout, name: cfg.Name}
}

// ListServers implements Discoverer.
func (b *BreakerDiscoverer) ListServers(ctx context.Context, creds driver.Credentials) ([]string, error) {
	ids, err := b.cb.Execute(func() ([]string, error) {
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return b.next.ListServers(cctx, creds)
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	metrics.RecordDiscovery(err)
	if err != nil {
		return nil, err
	}
	return Normalize(ids), nil
}

// State returns the breaker state.
func (b *BreakerDiscoverer) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
