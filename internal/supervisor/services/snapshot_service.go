// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package services

import (
	"context"
	"time"

	"github.com/tomtom215/opclink/internal/logging"
)

// Snapshotter persists the node tree.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context) error
}

// SnapshotService saves the node tree every interval and once more when it
// is stopped. Save errors are logged and never restart the service.
type SnapshotService struct {
	store    Snapshotter
	interval time.Duration
	name     string
}

// NewSnapshotService wraps store. A non-positive interval means one minute.
func NewSnapshotService(store Snapshotter, interval time.Duration) *SnapshotService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SnapshotService{
		store:    store,
		interval: interval,
		name:     "snapshot-writer",
	}
}

// Serve implements suture.Service.
func (s *SnapshotService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.save(ctx)
		case <-ctx.Done():
			s.save(context.WithoutCancel(ctx))
			return ctx.Err()
		}
	}
}

func (s *SnapshotService) save(ctx context.Context) {
	if err := s.store.SaveSnapshot(ctx); err != nil {
		logging.Warn().Err(err).Msg("Tree snapshot failed")
	}
}

// String implements fmt.Stringer for suture logs.
func (s *SnapshotService) String() string {
	return s.name
}
