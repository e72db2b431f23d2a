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

type mockContextHub struct {
	runErr error
	runs   atomic.Int32
}

func (m *mockContextHub) RunWithContext(ctx context.Context) error {
	m.runs.Add(1)
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

var _ suture.Service = (*WebSocketHubService)(nil)

func TestWebSocketHubService(t *testing.T) {
	t.Run("runs until canceled", func(t *testing.T) {
		hub := &mockContextHub{}
		svc := NewWebSocketHubService(hub)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if hub.runs.Load() != 1 {
			t.Errorf("runs = %d", hub.runs.Load())
		}
	})

	t.Run("propagates hub failure", func(t *testing.T) {
		hubErr := errors.New("hub crashed")
		svc := NewWebSocketHubService(&mockContextHub{runErr: hubErr})
		if err := svc.Serve(context.Background()); !errors.Is(err, hubErr) {
			t.Errorf("expected hub error, got %v", err)
		}
	})

	if got := NewWebSocketHubService(&mockContextHub{}).String(); got != "websocket-hub" {
		t.Errorf("String() = %q", got)
	}
}
