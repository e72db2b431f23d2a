// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package services

import (
	"context"
	"fmt"
	"time"
)

// EventsRunner is satisfied by *events.Publisher.
type EventsRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
}

// EventsService keeps the NATS value publisher (and the embedded server,
// when configured) running under supervision.
type EventsService struct {
	runner          EventsRunner
	shutdownTimeout time.Duration
	name            string
}

// NewEventsService wraps runner. A non-positive shutdownTimeout means
// 10 seconds.
func NewEventsService(runner EventsRunner, shutdownTimeout time.Duration) *EventsService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EventsService{
		runner:          runner,
		shutdownTimeout: shutdownTimeout,
		name:            "nats-events",
	}
}

// Serve implements suture.Service. A failed Start is returned so suture
// retries with backoff.
func (s *EventsService) Serve(ctx context.Context) error {
	if err := s.runner.Start(ctx); err != nil {
		return fmt.Errorf("events start failed: %w", err)
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.runner.Shutdown(shutdownCtx)
	return ctx.Err()
}

// String implements fmt.Stringer for suture logs.
func (s *EventsService) String() string {
	return s.name
}
