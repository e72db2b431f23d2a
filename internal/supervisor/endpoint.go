// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/opclink/internal/discovery"
	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// Endpoint is one configured host with its credentials and the connection
// supervisors of the servers added below it.
//
// Thread Safety:
//   - mu guards the supervisor list and the removed flag
//   - supervisor calls are made without mu held
type Endpoint struct {
	deps   *Deps
	link   *Link
	node   nodetree.NodeID
	name   string
	logger zerolog.Logger

	mu          sync.Mutex
	supervisors []*ConnectionSupervisor
	removed     bool
}

func newEndpoint(link *Link, node nodetree.NodeID) *Endpoint {
	name := link.deps.Tree.Name(node)
	e := &Endpoint{
		deps: link.deps,
		link: link,
		node: node,
		name: name,
		logger: logging.WithComponent("endpoint").With().
			Str("endpoint", name).
			Logger(),
	}
	if _, err := e.deps.Tree.PutAction(node, ActionRemove, nodetree.NewAction(func(ctx context.Context, _ nodetree.Invocation) error {
		e.Remove(ctx)
		return nil
	})); err != nil {
		e.logger.Debug().Err(err).Msg("Remove control not installed")
	}
	return e
}

// Name returns the endpoint node name.
func (e *Endpoint) Name() string { return e.name }

// Node returns the endpoint node.
func (e *Endpoint) Node() nodetree.NodeID { return e.node }

// Removed reports whether the endpoint was removed or replaced by a rename.
func (e *Endpoint) Removed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

// Credentials returns the stored host and login.
func (e *Endpoint) Credentials() driver.Credentials {
	attrs := e.deps.Tree.Attributes(e.node)
	return driver.Credentials{
		Host:     attrs[AttrHost],
		Domain:   attrs[AttrDomain],
		User:     attrs[AttrUser],
		Password: attrs[AttrPassword],
	}
}

// Supervisors returns the live supervisors in the order they were added.
func (e *Endpoint) Supervisors() []*ConnectionSupervisor {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ConnectionSupervisor, len(e.supervisors))
	copy(out, e.supervisors)
	return out
}

// Supervisor returns the supervisor of the named server.
func (e *Endpoint) Supervisor(name string) (*ConnectionSupervisor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.supervisors {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Init (re)installs the endpoint controls. The "add server" control is
// rebuilt from a fresh discovery query.
func (e *Endpoint) Init(ctx context.Context) {
	if e.Removed() {
		return
	}
	creds := e.Credentials()

	e.putAction(ActionEdit, func(ctx context.Context, inv nodetree.Invocation) error {
		return e.Edit(ctx,
			inv.String(ParamName),
			inv.String(AttrHost),
			inv.String(AttrDomain),
			inv.String(AttrUser),
			inv.String(AttrPassword),
		)
	},
		nodetree.StringParam(ParamName, e.name),
		nodetree.StringParam(AttrHost, creds.Host),
		nodetree.StringParam(AttrDomain, creds.Domain),
		nodetree.StringParam(AttrUser, creds.User),
		nodetree.StringParam(AttrPassword, ""),
	)

	e.putAction(ActionRefresh, func(ctx context.Context, _ nodetree.Invocation) error {
		e.Init(ctx)
		return nil
	})

	e.installAddServer(ctx, creds)
}

func (e *Endpoint) installAddServer(ctx context.Context, creds driver.Credentials) {
	params := []nodetree.Param{nodetree.StringParam(ParamName, "")}
	if ids := e.ListAvailableServers(ctx, creds); len(ids) > 0 {
		params = append(params,
			nodetree.EnumParam(ParamServerID, ids),
			nodetree.StringParam(ParamManualServerID, ""),
		)
	} else {
		params = append(params, nodetree.StringParam(ParamServerID, ""))
	}
	driverParam := nodetree.EnumParam(ParamDriver, driver.Names())
	driverParam.Default = e.deps.Options.DefaultDriver
	params = append(params, driverParam)

	e.putAction(ActionAddServer, func(ctx context.Context, inv nodetree.Invocation) error {
		serverID := inv.String(ParamManualServerID)
		if serverID == "" {
			serverID = inv.String(ParamServerID)
		}
		_, err := e.AddServer(ctx, inv.String(ParamName), serverID, inv.String(ParamDriver), nil)
		return err
	}, params...)
}

func (e *Endpoint) putAction(name string, handler nodetree.ActionHandler, params ...nodetree.Param) {
	if _, err := e.deps.Tree.PutAction(e.node, name, nodetree.NewAction(handler, params...)); err != nil {
		e.logger.Debug().Err(err).Str("action", name).Msg("Control not installed")
	}
}

// ListAvailableServers asks the discovery service which servers the host
// offers. Failures are logged and yield an empty list so that callers fall
// back to manual entry.
func (e *Endpoint) ListAvailableServers(ctx context.Context, creds driver.Credentials) []string {
	if e.deps.Discovery == nil {
		return nil
	}
	ids, err := e.deps.Discovery.ListServers(ctx, creds)
	if err != nil {
		e.logger.Warn().Err(err).Str("host", creds.Host).Msg("Server discovery failed, manual entry only")
		return nil
	}
	return discovery.Normalize(ids)
}

// AddServer creates a server node below the endpoint, binds a supervisor to
// it and initializes it. An empty driver name selects the default driver.
func (e *Endpoint) AddServer(ctx context.Context, name, serverID, driverName string, settings map[string]string) (*ConnectionSupervisor, error) {
	if e.Removed() {
		return nil, ErrRemoved
	}
	if name == "" {
		return nil, ErrMissingName
	}
	if serverID == "" {
		return nil, ErrMissingServer
	}
	tree := e.deps.Tree
	if _, exists := tree.Child(e.node, name); exists {
		return nil, fmt.Errorf("%w: %q", ErrServerExists, name)
	}
	if driverName == "" {
		driverName = e.deps.Options.DefaultDriver
	}
	if _, err := e.deps.Drivers(driverName); err != nil {
		return nil, err
	}

	node, err := tree.CreateChild(e.node, name)
	if err != nil {
		return nil, err
	}
	tree.SetAttribute(node, AttrServerID, serverID)
	tree.SetAttribute(node, AttrDriver, driverName)
	for k, v := range settings {
		tree.SetAttribute(node, SettingPrefix+k, v)
	}

	s, err := NewConnectionSupervisor(e, node)
	if err != nil {
		tree.Remove(node)
		return nil, err
	}
	if !e.track(s) {
		// Detached meanwhile. A rename carries the node over to its new
		// endpoint, which restores it.
		s.detach(ctx)
		return nil, ErrRemoved
	}
	e.logger.Info().Str("server", name).Str("server_id", serverID).Str("driver", driverName).Msg("Server added")
	s.Init(ctx)
	return s, nil
}

// track adds s to the supervisor list. It refuses once the endpoint is
// detached.
func (e *Endpoint) track(s *ConnectionSupervisor) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	e.supervisors = append(e.supervisors, s)
	return true
}

// forget drops s from the supervisor list.
func (e *Endpoint) forget(s *ConnectionSupervisor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cur := range e.supervisors {
		if cur == s {
			e.supervisors = append(e.supervisors[:i], e.supervisors[i+1:]...)
			return
		}
	}
}

// Edit stores new credentials. A new non-empty name renames the endpoint,
// otherwise the controls are rebuilt. An empty password keeps the stored one.
func (e *Endpoint) Edit(ctx context.Context, name, host, domain, user, password string) error {
	if e.Removed() {
		return ErrRemoved
	}
	tree := e.deps.Tree
	renaming := name != "" && name != e.name
	if _, exists := tree.Child(tree.Root(), name); renaming && exists {
		return fmt.Errorf("%w: %q", ErrEndpointExists, name)
	}
	tree.SetAttribute(e.node, AttrHost, host)
	tree.SetAttribute(e.node, AttrDomain, domain)
	tree.SetAttribute(e.node, AttrUser, user)
	if password != "" {
		tree.SetAttribute(e.node, AttrPassword, password)
	}

	if renaming {
		_, err := e.link.renameEndpoint(ctx, e, name)
		return err
	}
	e.Init(ctx)
	return nil
}

// Remove removes every supervisor and then the endpoint subtree. Removing
// twice is a no-op.
func (e *Endpoint) Remove(ctx context.Context) {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return
	}
	e.removed = true
	sups := append([]*ConnectionSupervisor(nil), e.supervisors...)
	e.mu.Unlock()

	for _, s := range sups {
		s.Remove(ctx)
	}
	e.deps.Tree.Remove(e.node)
	e.link.forget(e)
	e.logger.Info().Msg("Connection removed")
}

// detach stops every supervisor and marks the endpoint removed without
// deleting any node.
func (e *Endpoint) detach(ctx context.Context) {
	e.mu.Lock()
	e.removed = true
	sups := e.supervisors
	e.supervisors = nil
	e.mu.Unlock()

	for _, s := range sups {
		s.detach(ctx)
	}
}

// RestoreLastSession initializes the endpoint from its persisted subtree:
// server nodes get a supervisor and are restored, anything else that is not
// a control is deleted.
func (e *Endpoint) RestoreLastSession(ctx context.Context) {
	e.Init(ctx)
	tree := e.deps.Tree
	for _, child := range tree.Children(e.node) {
		if _, ok := tree.Attribute(child, AttrServerID); ok {
			if e.bound(child) {
				continue
			}
			s, err := NewConnectionSupervisor(e, child)
			if err != nil {
				e.logger.Warn().Err(err).Str("server", tree.Name(child)).Msg("Failed to restore server")
				continue
			}
			if !e.track(s) {
				s.detach(ctx)
				return
			}
			s.Restore(ctx)
			continue
		}
		if !tree.HasAction(child) {
			e.logger.Debug().Str("node", tree.Name(child)).Msg("Removing stale node")
			tree.Remove(child)
		}
	}
}

func (e *Endpoint) bound(node nodetree.NodeID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.supervisors {
		if s.Node() == node {
			return true
		}
	}
	return false
}

// renameServer moves s to a sibling node called name and restores a fresh
// supervisor there. The old supervisor is detached before the tree swap so
// no driver callback lands on the old subtree afterwards.
func (e *Endpoint) renameServer(ctx context.Context, s *ConnectionSupervisor, name string) (*ConnectionSupervisor, error) {
	tree := e.deps.Tree
	if _, exists := tree.Child(e.node, name); exists {
		return nil, fmt.Errorf("%w: %q", ErrServerExists, name)
	}
	if !s.detach(ctx) {
		return nil, ErrRemoved
	}
	e.forget(s)

	node, err := tree.Rename(s.Node(), name)
	if err != nil {
		if !tree.Exists(s.Node()) {
			return nil, err
		}
		e.logger.Warn().Err(err).Str("server", s.Name()).Msg("Rename failed, restoring in place")
		node = s.Node()
	}
	ns, nerr := NewConnectionSupervisor(e, node)
	if nerr != nil {
		return nil, nerr
	}
	if !e.track(ns) {
		ns.detach(ctx)
		return nil, ErrRemoved
	}
	ns.Restore(ctx)
	if err == nil {
		e.logger.Info().Str("from", s.Name()).Str("to", name).Msg("Server renamed")
	}
	return ns, err
}
