// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

// Package discovery enumerates the server identifiers available at a host.
//
// Discovery feeds the "add server" control of an endpoint. It is never
// fatal: callers log a failure and fall back to a free-text identifier.
package discovery

import (
	"context"
	"errors"
	"sort"

	"github.com/tomtom215/opclink/internal/driver"
)

// ErrNoDiscoverer is returned by a nil Func.
var ErrNoDiscoverer = errors.New("discovery not configured")

// Discoverer lists server identifiers reachable with creds.
type Discoverer interface {
	ListServers(ctx context.Context, creds driver.Credentials) ([]string, error)
}

// Func adapts a function to Discoverer.
type Func func(ctx context.Context, creds driver.Credentials) ([]string, error)

// ListServers implements Discoverer.
func (f Func) ListServers(ctx context.Context, creds driver.Credentials) ([]string, error) {
	if f == nil {
		return nil, ErrNoDiscoverer
	}
	return f(ctx, creds)
}

// Static always returns the same identifiers, regardless of host.
type Static []string

// ListServers implements Discoverer.
func (s Static) ListServers(_ context.Context, _ driver.Credentials) ([]string, error) {
	return Normalize(s), nil
}

// Normalize trims duplicates and empty entries and sorts the result.
func Normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
