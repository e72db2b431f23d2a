// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*EventsService)(nil)
	_ suture.Service = (*SnapshotService)(nil)
	_ suture.Service = (*LinkService)(nil)
)

type mockEvents struct {
	startErr  error
	started   atomic.Bool
	shutdowns atomic.Int32
}

func (m *mockEvents) Start(context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started.Store(true)
	return nil
}

func (m *mockEvents) Shutdown(context.Context) { m.shutdowns.Add(1) }

func TestEventsService(t *testing.T) {
	t.Run("start then shutdown", func(t *testing.T) {
		runner := &mockEvents{}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := NewEventsService(runner, 0).Serve(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("unexpected error: %v", err)
		}
		if !runner.started.Load() || runner.shutdowns.Load() != 1 {
			t.Errorf("started=%v shutdowns=%d", runner.started.Load(), runner.shutdowns.Load())
		}
	})

	t.Run("start failure is returned", func(t *testing.T) {
		startErr := errors.New("nats: no servers available")
		runner := &mockEvents{startErr: startErr}
		if err := NewEventsService(runner, time.Second).Serve(context.Background()); !errors.Is(err, startErr) {
			t.Errorf("expected start error, got %v", err)
		}
		if runner.shutdowns.Load() != 0 {
			t.Error("Shutdown must not run after a failed Start")
		}
	})
}

type countingSnapshotter struct {
	saves atomic.Int32
	err   error
}

func (c *countingSnapshotter) SaveSnapshot(context.Context) error {
	c.saves.Add(1)
	return c.err
}

func TestSnapshotService(t *testing.T) {
	t.Run("periodic and final save", func(t *testing.T) {
		store := &countingSnapshotter{}
		svc := NewSnapshotService(store, 10*time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
		defer cancel()

		_ = svc.Serve(ctx)
		if n := store.saves.Load(); n < 3 {
			t.Errorf("saves = %d, want periodic saves plus a final one", n)
		}
	})

	t.Run("errors do not stop the service", func(t *testing.T) {
		store := &countingSnapshotter{err: errors.New("disk full")}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := NewSnapshotService(store, 5*time.Millisecond).Serve(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	if svc := NewSnapshotService(&countingSnapshotter{}, 0); svc.interval != time.Minute {
		t.Errorf("default interval = %v", svc.interval)
	}
}

type mockLink struct{ shutdowns atomic.Int32 }

func (m *mockLink) Shutdown(context.Context) { m.shutdowns.Add(1) }

func TestLinkService(t *testing.T) {
	link := &mockLink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewLinkService(link).Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error: %v", err)
	}
	if link.shutdowns.Load() != 1 {
		t.Errorf("shutdowns = %d", link.shutdowns.Load())
	}
}
