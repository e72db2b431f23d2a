// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/metrics"
	"github.com/tomtom215/opclink/internal/nodetree"
	"github.com/tomtom215/opclink/internal/scheduler"
)

// Phase is the connection phase of a supervisor.
type Phase int

// Supervisor phases.
const (
	PhaseStopped Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	default:
		return "stopped"
	}
}

// connState is every mutable field of a supervisor. It is only read or
// written with ConnectionSupervisor.mu held.
type connState struct {
	phase            Phase
	stopped          bool
	initializing     bool
	suppressPing     bool
	failCount        int
	pingCyclesToSkip int
	pingHandle       scheduler.Handle
	generation       uint64
	removed          bool
}

// State is a point-in-time copy of a supervisor's state.
type State struct {
	Phase            Phase
	Stopped          bool
	Initializing     bool
	SuppressPing     bool
	FailCount        int
	PingCyclesToSkip int
	PingScheduled    bool
	Removed          bool
}

// ConnectionSupervisor owns the lifecycle of one server connection: it
// connects through its driver, health-checks the connection on every ping
// tick, backs off after failures and keeps the item nodes below it wired to
// the driver.
//
// Locking: mu guards state and is the only lock ping takes. lifecycle
// serializes Init, stop, Remove and reconnect, and is held across the
// blocking driver Connect call.
type ConnectionSupervisor struct {
	deps     *Deps
	endpoint *Endpoint
	node     nodetree.NodeID
	name     string

	drv        driver.Driver
	driverName string
	items      *ItemRegistry
	status     nodetree.NodeID
	logger     zerolog.Logger

	lifecycle sync.Mutex
	mu        sync.Mutex
	state     connState
}

// NewConnectionSupervisor binds a supervisor to an existing server node
// below ep. The driver named by the node's driver attribute is built
// immediately; nothing connects until Init.
func NewConnectionSupervisor(ep *Endpoint, node nodetree.NodeID) (*ConnectionSupervisor, error) {
	deps := ep.deps
	tree := deps.Tree
	if !tree.Exists(node) {
		return nil, nodetree.ErrNodeNotFound
	}

	driverName, _ := tree.Attribute(node, AttrDriver)
	if driverName == "" {
		driverName = deps.Options.DefaultDriver
		tree.SetAttribute(node, AttrDriver, driverName)
	}
	factory, err := deps.Drivers(driverName)
	if err != nil {
		return nil, err
	}

	s := &ConnectionSupervisor{
		deps:       deps,
		endpoint:   ep,
		node:       node,
		name:       tree.Name(node),
		drv:        factory(),
		driverName: driverName,
	}
	s.logger = logging.WithComponent("supervisor").With().
		Str("endpoint", ep.Name()).
		Str("server", s.name).
		Logger()
	s.items = NewItemRegistry(tree, node, s)

	s.status, err = tree.CreateChild(node, StatusNode)
	if err != nil {
		return nil, err
	}
	tree.SetSerializable(s.status, false)
	tree.SetValue(s.status, "")

	if _, err := tree.PutAction(node, ActionRemove, nodetree.NewAction(func(ctx context.Context, _ nodetree.Invocation) error {
		s.Remove(ctx)
		return nil
	})); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the server node name.
func (s *ConnectionSupervisor) Name() string { return s.name }

// Node returns the server node.
func (s *ConnectionSupervisor) Node() nodetree.NodeID { return s.node }

// Items returns the item registry.
func (s *ConnectionSupervisor) Items() *ItemRegistry { return s.items }

// ServerID returns the configured server identifier.
func (s *ConnectionSupervisor) ServerID() string {
	id, _ := s.deps.Tree.Attribute(s.node, AttrServerID)
	return id
}

// Status returns the current status text.
func (s *ConnectionSupervisor) Status() string {
	v, _ := s.deps.Tree.Value(s.status)
	str, _ := v.(string)
	return str
}

// State returns a copy of the supervisor state.
func (s *ConnectionSupervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Phase:            s.state.phase,
		Stopped:          s.state.stopped,
		Initializing:     s.state.initializing,
		SuppressPing:     s.state.suppressPing,
		FailCount:        s.state.failCount,
		PingCyclesToSkip: s.state.pingCyclesToSkip,
		PingScheduled:    s.state.pingHandle != nil,
		Removed:          s.state.removed,
	}
}

func (s *ConnectionSupervisor) target() driver.Target {
	attrs := s.deps.Tree.Attributes(s.node)
	return driver.Target{
		Credentials: s.endpoint.Credentials(),
		ServerID:    attrs[AttrServerID],
		Settings:    settingsFromAttrs(attrs),
	}
}

// Init connects the supervisor and installs the controls matching the
// outcome. It never fails: a failed connect leaves the supervisor Stopped
// with a connect control and one more failure counted.
func (s *ConnectionSupervisor) Init(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.initLocked(ctx)
}

// Restore re-initializes a supervisor rebuilt from a persisted node.
func (s *ConnectionSupervisor) Restore(ctx context.Context) {
	s.Init(ctx)
}

// Refresh drops the connection and connects again.
func (s *ConnectionSupervisor) Refresh(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked(ctx)
	s.initLocked(ctx)
}

// Disconnect stops the supervisor and keeps ping from reconnecting it until
// the next Refresh or connect.
func (s *ConnectionSupervisor) Disconnect(ctx context.Context) {
	s.setSuppressPing()
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	// An Init that ran while we waited cleared the flag.
	s.setSuppressPing()
	s.stopLocked(ctx)
}

func (s *ConnectionSupervisor) setSuppressPing() {
	s.mu.Lock()
	s.state.suppressPing = true
	s.mu.Unlock()
}

// Remove stops the supervisor, deletes its subtree and cancels its ping
// timer. Removing twice is a no-op.
func (s *ConnectionSupervisor) Remove(ctx context.Context) {
	if !s.detach(ctx) {
		return
	}
	s.deps.Tree.Remove(s.node)
	s.endpoint.forget(s)
	s.logger.Info().Msg("Server removed")
}

// detach stops the supervisor and cancels its timer without touching the
// tree. It reports false if the supervisor was already detached.
func (s *ConnectionSupervisor) detach(ctx context.Context) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state.removed {
		s.mu.Unlock()
		return false
	}
	s.state.suppressPing = true
	s.mu.Unlock()

	s.stopLocked(ctx)
	s.items.release()

	s.mu.Lock()
	s.state.removed = true
	handle := s.state.pingHandle
	s.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}
	metrics.ForgetSupervisor(s.endpoint.Name(), s.name)
	return true
}

func (s *ConnectionSupervisor) initLocked(ctx context.Context) {
	tree := s.deps.Tree
	log := s.logger.With().Str("correlation_id", correlationID(ctx)).Logger()

	s.mu.Lock()
	if s.state.removed {
		s.mu.Unlock()
		return
	}
	s.state.initializing = true
	s.state.suppressPing = false
	s.state.stopped = false
	s.state.phase = PhaseConnecting
	s.state.generation++
	s.mu.Unlock()
	s.publishState()

	tree.SetValue(s.status, StatusConnecting)
	s.installEdit()
	if n := s.items.Adopt(); n > 0 {
		log.Debug().Int("items", n).Msg("Adopted persisted items")
	}

	target := s.target()
	dctx := context.WithoutCancel(ctx)
	cctx, cancel := context.WithTimeout(dctx, s.deps.Options.ConnectTimeout)
	start := time.Now()
	err := s.drv.Connect(cctx, target)
	cancel()
	metrics.RecordConnect(s.driverName, time.Since(start), err)
	if err != nil {
		log.Warn().Err(err).Str("server_id", target.ServerID).Msg("Connect failed")
		s.stopLocked(ctx)
	}

	s.mu.Lock()
	connected := !s.state.stopped
	s.mu.Unlock()

	if connected {
		tree.SetValue(s.status, StatusConnected)
		tree.RemoveChild(s.node, ActionConnect)
		s.putAction(ActionRefresh, s.refreshHandler())
		s.putAction(ActionDisconnect, func(ctx context.Context, _ nodetree.Invocation) error {
			s.Disconnect(ctx)
			return nil
		})
		if err := s.drv.OnConnected(dctx, s.items); err != nil {
			log.Warn().Err(err).Msg("Driver post-connect hook failed")
		}
		s.resubscribe()

		s.mu.Lock()
		s.state.failCount = 0
		s.state.pingCyclesToSkip = 0
		s.state.phase = PhaseConnected
		s.mu.Unlock()
		log.Info().Str("server_id", target.ServerID).Msg("Connected")
	} else {
		s.putAction(ActionConnect, s.refreshHandler())
		s.mu.Lock()
		s.state.failCount++
		s.state.phase = PhaseStopped
		failCount := s.state.failCount
		s.mu.Unlock()
		log.Debug().Int("fail_count", failCount).Msg("Server stopped after failed connect")
	}

	s.putAction(ActionClear, func(context.Context, nodetree.Invocation) error {
		s.items.Clear()
		return nil
	})
	s.installAddItem()

	s.mu.Lock()
	if s.state.pingHandle == nil && !s.state.removed {
		s.state.pingHandle = s.deps.Scheduler.ScheduleRepeating(s.deps.Options.PingInterval, s.ping)
	}
	s.state.initializing = false
	s.mu.Unlock()
	s.publishState()
}

// stopLocked marks the supervisor stopped, releases the driver connection
// and switches the controls to the disconnected set.
func (s *ConnectionSupervisor) stopLocked(ctx context.Context) {
	tree := s.deps.Tree

	s.mu.Lock()
	s.state.stopped = true
	s.state.phase = PhaseStopped
	s.mu.Unlock()

	if err := s.drv.Disconnect(context.WithoutCancel(ctx)); err != nil {
		s.logger.Debug().Err(err).Msg("Driver disconnect failed")
	}
	tree.SetValue(s.status, StatusNotConnected)
	tree.RemoveChild(s.node, ActionRefresh)
	tree.RemoveChild(s.node, ActionDisconnect)
	s.putAction(ActionConnect, s.refreshHandler())
	s.publishState()
}

// ping runs on every scheduler tick.
func (s *ConnectionSupervisor) ping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.removed {
		return
	}

	switch {
	case s.state.pingCyclesToSkip > 0:
		s.state.pingCyclesToSkip--
		metrics.RecordPing("skipped")
	case !s.state.initializing && !s.state.suppressPing:
		if s.drv.IsConnected() {
			metrics.RecordPing("healthy")
			return
		}
		s.state.pingCyclesToSkip = min(s.state.failCount, s.deps.Options.MaxPingSkip)
		gen := s.state.generation
		s.logger.Debug().
			Int("skip_cycles", s.state.pingCyclesToSkip).
			Msg("Not connected to server, scheduling reconnect")
		metrics.RecordPing("lost")
		metrics.ReconnectsScheduled.Inc()
		s.deps.Scheduler.ScheduleOnce(0, func() { s.reconnect(gen) })
	default:
		metrics.RecordPing("deferred")
	}
}

// reconnect is the asynchronous stop+init dispatched by a failed ping. It
// does nothing if the supervisor was deliberately disconnected, removed, or
// re-initialized since the ping that scheduled it.
func (s *ConnectionSupervisor) reconnect(gen uint64) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	skip := s.state.removed || s.state.suppressPing || s.state.generation != gen
	s.mu.Unlock()
	if skip {
		return
	}
	ctx := logging.ContextWithNewCorrelationID(context.Background())
	s.stopLocked(ctx)
	s.initLocked(ctx)
}

// Edit updates the server settings. A new non-empty name renames the
// server node; otherwise the supervisor reconnects with the new settings.
func (s *ConnectionSupervisor) Edit(ctx context.Context, name, serverID string, settings map[string]string) error {
	tree := s.deps.Tree
	if s.State().Removed {
		return ErrRemoved
	}
	renaming := name != "" && name != s.name
	if _, exists := tree.Child(s.endpoint.Node(), name); renaming && exists {
		return fmt.Errorf("%w: %q", ErrServerExists, name)
	}
	if serverID != "" {
		tree.SetAttribute(s.node, AttrServerID, serverID)
	}
	for k, v := range settings {
		tree.SetAttribute(s.node, SettingPrefix+k, v)
	}
	if renaming {
		_, err := s.endpoint.renameServer(ctx, s, name)
		return err
	}
	s.Refresh(ctx)
	return nil
}

func (s *ConnectionSupervisor) refreshHandler() nodetree.ActionHandler {
	return func(ctx context.Context, _ nodetree.Invocation) error {
		s.Refresh(ctx)
		return nil
	}
}

func (s *ConnectionSupervisor) putAction(name string, handler nodetree.ActionHandler, params ...nodetree.Param) {
	if _, err := s.deps.Tree.PutAction(s.node, name, nodetree.NewAction(handler, params...)); err != nil {
		s.logger.Debug().Err(err).Str("action", name).Msg("Control not installed")
	}
}

func (s *ConnectionSupervisor) installEdit() {
	attrs := s.deps.Tree.Attributes(s.node)
	params := []nodetree.Param{
		nodetree.StringParam(ParamName, s.name),
		nodetree.StringParam(ParamServerID, attrs[AttrServerID]),
	}
	params = append(params, s.drv.EditParams(settingsFromAttrs(attrs))...)

	s.putAction(ActionEdit, func(ctx context.Context, inv nodetree.Invocation) error {
		settings := make(map[string]string)
		for k, v := range inv.Params {
			switch k {
			case ParamName, ParamServerID:
			default:
				settings[k] = strings.TrimSpace(v)
			}
		}
		return s.Edit(ctx, inv.String(ParamName), inv.String(ParamServerID), settings)
	}, params...)
}

func (s *ConnectionSupervisor) installAddItem() {
	access := []string{string(driver.ReadOnly), string(driver.ReadWrite), string(driver.WriteOnly)}
	s.putAction(ActionAddItem, func(_ context.Context, inv nodetree.Invocation) error {
		id := inv.String(ParamItemID)
		if id == "" {
			return ErrMissingItemID
		}
		var folders []string
		for _, f := range strings.Split(inv.String(ParamPath), nodetree.PathSeparator) {
			if f = strings.TrimSpace(f); f != "" {
				folders = append(folders, f)
			}
		}
		return s.items.AddItem(folders, id, driver.ParseAccessRights(inv.String(ParamAccess)))
	},
		nodetree.StringParam(ParamItemID, ""),
		nodetree.StringParam(ParamPath, ""),
		nodetree.Param{Name: ParamAccess, Type: nodetree.ParamEnum, Enum: access, Default: string(driver.ReadOnly)},
	)
}

// resubscribe re-issues driver subscriptions for items that still have
// client subscribers after a reconnect.
func (s *ConnectionSupervisor) resubscribe() {
	for _, item := range s.items.Items() {
		if s.deps.Tree.Subscribers(item.Node) > 0 {
			s.SubscribeItem(item)
		}
	}
}

// SubscribeItem implements ItemHandler.
func (s *ConnectionSupervisor) SubscribeItem(item driver.Item) {
	if !s.drv.IsConnected() {
		return
	}
	tree := s.deps.Tree
	node := item.Node
	err := s.drv.Subscribe(context.Background(), item, func(v any) { tree.SetValue(node, v) })
	if err != nil {
		s.logger.Warn().Err(err).Str("item", item.ID).Msg("Subscribe failed")
	}
}

// UnsubscribeItem implements ItemHandler.
func (s *ConnectionSupervisor) UnsubscribeItem(item driver.Item) {
	if err := s.drv.Unsubscribe(context.Background(), item); err != nil {
		s.logger.Debug().Err(err).Str("item", item.ID).Msg("Unsubscribe failed")
	}
}

// WriteItem implements ItemHandler.
func (s *ConnectionSupervisor) WriteItem(ctx context.Context, item driver.Item, value any) error {
	var err error
	if !s.drv.IsConnected() {
		err = driver.ErrNotConnected
	} else {
		err = s.drv.Write(ctx, item, value)
	}
	metrics.RecordItemWrite(err)
	if err != nil {
		return fmt.Errorf("write %s: %w", item.ID, err)
	}
	return nil
}

func (s *ConnectionSupervisor) publishState() {
	st := s.State()
	if st.Removed {
		return
	}
	phase := metrics.PhaseStopped
	switch st.Phase {
	case PhaseConnecting:
		phase = metrics.PhaseConnecting
	case PhaseConnected:
		phase = metrics.PhaseConnected
	}
	metrics.SetSupervisorState(s.endpoint.Name(), s.name, phase, st.FailCount)
}

func correlationID(ctx context.Context) string {
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		return id
	}
	return logging.GenerateCorrelationID()
}
