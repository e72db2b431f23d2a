// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// ErrNilTree is returned by NewLink without a tree.
var ErrNilTree = errors.New("node tree cannot be nil")

// ErrNilScheduler is returned by NewLink without a scheduler.
var ErrNilScheduler = errors.New("scheduler cannot be nil")

// Link owns the tree root: it exposes "add connection" and keeps the
// registry of endpoints below the root.
//
// Example Usage:
//
//	link, err := supervisor.NewLink(supervisor.Deps{Tree: tree, Scheduler: ticker})
//	if err != nil {
//	    return err
//	}
//	link.Init(ctx) // restores every persisted connection
type Link struct {
	deps *Deps

	mu        sync.RWMutex
	endpoints map[nodetree.NodeID]*Endpoint
}

// NewLink creates a Link over deps.Tree.
func NewLink(deps Deps) (*Link, error) {
	if deps.Tree == nil {
		return nil, ErrNilTree
	}
	if deps.Scheduler == nil {
		return nil, ErrNilScheduler
	}
	return &Link{
		deps:      deps.withDefaults(),
		endpoints: make(map[nodetree.NodeID]*Endpoint),
	}, nil
}

// Tree returns the node tree.
func (l *Link) Tree() *nodetree.Tree { return l.deps.Tree }

// Options returns the effective supervisor options.
func (l *Link) Options() Options { return l.deps.Options }

// Init installs the root controls and restores every persisted endpoint.
// Root children that are neither controls nor endpoints are deleted.
func (l *Link) Init(ctx context.Context) {
	tree := l.deps.Tree
	root := tree.Root()

	if _, err := tree.PutAction(root, ActionAddConnection, nodetree.NewAction(func(ctx context.Context, inv nodetree.Invocation) error {
		_, err := l.AddConnection(ctx,
			inv.String(ParamName),
			inv.String(AttrHost),
			inv.String(AttrDomain),
			inv.String(AttrUser),
			inv.String(AttrPassword),
		)
		return err
	},
		nodetree.StringParam(ParamName, ""),
		nodetree.StringParam(AttrHost, "localhost"),
		nodetree.StringParam(AttrDomain, ""),
		nodetree.StringParam(AttrUser, ""),
		nodetree.StringParam(AttrPassword, ""),
	)); err != nil {
		logging.Error().Err(err).Msg("Failed to install add connection control")
	}

	restored := 0
	for _, child := range tree.Children(root) {
		if _, ok := tree.Attribute(child, AttrHost); ok {
			if _, bound := l.lookup(child); bound {
				continue
			}
			e := newEndpoint(l, child)
			l.register(e)
			e.RestoreLastSession(ctx)
			restored++
			continue
		}
		if !tree.HasAction(child) {
			tree.Remove(child)
		}
	}
	logging.Info().Int("connections", restored).Msg("Restored connections")
}

// AddConnection creates an endpoint node below the root and initializes it.
func (l *Link) AddConnection(ctx context.Context, name, host, domain, user, password string) (*Endpoint, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	tree := l.deps.Tree
	if _, exists := tree.Child(tree.Root(), name); exists {
		return nil, fmt.Errorf("%w: %q", ErrEndpointExists, name)
	}
	node, err := tree.CreateChild(tree.Root(), name)
	if err != nil {
		return nil, err
	}
	tree.SetAttribute(node, AttrHost, host)
	tree.SetAttribute(node, AttrDomain, domain)
	tree.SetAttribute(node, AttrUser, user)
	tree.SetAttribute(node, AttrPassword, password)

	e := newEndpoint(l, node)
	l.register(e)
	e.Init(ctx)
	logging.Info().Str("endpoint", name).Str("host", host).Msg("Connection added")
	return e, nil
}

// Endpoint returns the endpoint with the given name.
func (l *Link) Endpoint(name string) (*Endpoint, bool) {
	node, ok := l.deps.Tree.Child(l.deps.Tree.Root(), name)
	if !ok {
		return nil, false
	}
	return l.lookup(node)
}

// Endpoints returns every live endpoint sorted by name.
func (l *Link) Endpoints() []*Endpoint {
	l.mu.RLock()
	out := make([]*Endpoint, 0, len(l.endpoints))
	for _, e := range l.endpoints {
		out = append(out, e)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Supervisors returns every live supervisor of every endpoint.
func (l *Link) Supervisors() []*ConnectionSupervisor {
	var out []*ConnectionSupervisor
	for _, e := range l.Endpoints() {
		out = append(out, e.Supervisors()...)
	}
	return out
}

func (l *Link) lookup(node nodetree.NodeID) (*Endpoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.endpoints[node]
	return e, ok
}

func (l *Link) register(e *Endpoint) {
	l.mu.Lock()
	l.endpoints[e.node] = e
	l.mu.Unlock()
}

func (l *Link) forget(e *Endpoint) {
	l.mu.Lock()
	if cur, ok := l.endpoints[e.node]; ok && cur == e {
		delete(l.endpoints, e.node)
	}
	l.mu.Unlock()
}

// renameEndpoint moves e to a root child called name and restores a fresh
// endpoint there. The subtree copy and the removal of the old node happen in
// a single tree operation.
func (l *Link) renameEndpoint(ctx context.Context, e *Endpoint, name string) (*Endpoint, error) {
	tree := l.deps.Tree
	if _, exists := tree.Child(tree.Root(), name); exists {
		return nil, fmt.Errorf("%w: %q", ErrEndpointExists, name)
	}
	e.detach(ctx)
	l.forget(e)

	node, err := tree.Rename(e.node, name)
	if err != nil {
		if !tree.Exists(e.node) {
			// Another rename or a remove got there first.
			return nil, err
		}
		logging.Warn().Err(err).Str("endpoint", e.name).Msg("Rename failed, restoring in place")
		node = e.node
	}
	ne := newEndpoint(l, node)
	l.register(ne)
	ne.RestoreLastSession(ctx)
	if err == nil {
		logging.Info().Str("from", e.name).Str("to", name).Msg("Connection renamed")
	}
	return ne, err
}

// Shutdown stops every supervisor without deleting any node, so the tree can
// still be snapshotted afterwards.
func (l *Link) Shutdown(ctx context.Context) {
	l.mu.Lock()
	endpoints := l.endpoints
	l.endpoints = make(map[nodetree.NodeID]*Endpoint)
	l.mu.Unlock()

	for _, e := range endpoints {
		e.detach(ctx)
	}
	logging.Info().Int("connections", len(endpoints)).Msg("All connections stopped")
}
