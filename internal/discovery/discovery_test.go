// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/opclink/internal/driver"
)

func TestStatic(t *testing.T) {
	ids, err := Static{"b", "a", "", "b"}.ListServers(context.Background(), driver.Credentials{})
	if err != nil {
		t.Fatalf("ListServers failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ids = %v", ids)
	}
}

func TestNilFunc(t *testing.T) {
	var f Func
	if _, err := f.ListServers(context.Background(), driver.Credentials{}); !errors.Is(err, ErrNoDiscoverer) {
		t.Errorf("expected ErrNoDiscoverer, got %v", err)
	}
}

func TestBreakerDiscoverer(t *testing.T) {
	t.Run("passes results through", func(t *testing.T) {
		var seen driver.Credentials
		b := NewBreakerDiscoverer(Func(func(_ context.Context, c driver.Credentials) ([]string, error) {
			seen = c
			return []string{"Vendor.OPC.Simulation", "Matrikon.OPC.Simulation"}, nil
		}), BreakerConfig{Name: "test-pass"})

		ids, err := b.ListServers(context.Background(), driver.Credentials{Host: "10.0.0.5"})
		if err != nil {
			t.Fatalf("ListServers failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "Matrikon.OPC.Simulation" {
			t.Errorf("ids = %v", ids)
		}
		if seen.Host != "10.0.0.5" {
			t.Errorf("credentials not forwarded: %+v", seen)
		}
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		calls := 0
		b := NewBreakerDiscoverer(Func(func(context.Context, driver.Credentials) ([]string, error) {
			calls++
			return nil, errors.New("access denied")
		}), BreakerConfig{Name: "test-open", ConsecutiveFailures: 2, OpenTimeout: time.Hour})

		for i := 0; i < 2; i++ {
			if _, err := b.ListServers(context.Background(), driver.Credentials{}); err == nil {
				t.Fatal("expected failure")
			}
		}
		if b.State() != gobreaker.StateOpen {
			t.Fatalf("state = %v, want open", b.State())
		}
		_, err := b.ListServers(context.Background(), driver.Credentials{})
		if !errors.Is(err, gobreaker.ErrOpenState) {
			t.Errorf("expected ErrOpenState, got %v", err)
		}
		if calls != 2 {
			t.Errorf("open breaker must not call through, calls = %d", calls)
		}
	})

	t.Run("applies timeout", func(t *testing.T) {
		b := NewBreakerDiscoverer(Func(func(ctx context.Context, _ driver.Credentials) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), BreakerConfig{Name: "test-timeout", Timeout: 10 * time.Millisecond})

		_, err := b.ListServers(context.Background(), driver.Credentials{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}
