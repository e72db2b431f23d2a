// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/metrics"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypeValue        = "value"
	MessageTypeError        = "error"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Errors reported to clients.
var (
	ErrUnknownPath   = errors.New("unknown path")
	ErrNotSubscribed = errors.New("not subscribed")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnknownType   = errors.New("unknown message type")
	ErrMalformed     = errors.New("malformed message")
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// PathRequest is the data of subscribe and unsubscribe requests.
type PathRequest struct {
	Path string `json:"path"`
}

// ValueData is pushed on every value change of a subscribed node, and once
// on subscribe when the node already has a value.
type ValueData struct {
	Path  string    `json:"path"`
	Value any       `json:"value"`
	Time  time.Time `json:"time"`
}

// ErrorData reports a failed request.
type ErrorData struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// Limits bounds the request rate of a single client.
type Limits struct {
	MessagesPerSecond float64
	Burst             int
}

// DefaultLimits returns the per-client defaults.
func DefaultLimits() Limits {
	return Limits{MessagesPerSecond: 20, Burst: 40}
}

// Hub tracks connected clients and routes value updates of the node tree to
// the clients subscribed to each node.
type Hub struct {
	tree   *nodetree.Tree
	limits Limits

	updates    chan nodetree.ValueUpdate
	Register   chan *Client
	Unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]bool

	// subs maps a node to its watching clients. The flag is set once the
	// tree subscription for that client is held.
	subs map[nodetree.NodeID]map[*Client]bool
}

// NewHub creates a hub and registers it as a value listener on tree.
func NewHub(tree *nodetree.Tree, limits Limits) *Hub {
	def := DefaultLimits()
	if limits.MessagesPerSecond <= 0 {
		limits.MessagesPerSecond = def.MessagesPerSecond
	}
	if limits.Burst <= 0 {
		limits.Burst = def.Burst
	}
	h := &Hub{
		tree:       tree,
		limits:     limits,
		updates:    make(chan nodetree.ValueUpdate, 1024),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		subs:       make(map[nodetree.NodeID]map[*Client]bool),
	}
	tree.OnValueChange(h.onValue)
	return h
}

func (h *Hub) onValue(u nodetree.ValueUpdate) {
	h.mu.RLock()
	_, watched := h.subs[u.Node]
	h.mu.RUnlock()
	if !watched {
		return
	}
	select {
	case h.updates <- u:
	default:
		logging.Warn().Str("path", u.Path).Msg("websocket update channel full, dropping value")
	}
}

// RunWithContext runs the hub until ctx is done. Client lifecycle events
// are handled before value updates so a client never receives values after
// it unregistered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case u := <-h.updates:
			h.dispatch(u)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	nodes := h.dropClientLocked(c)
	n := len(h.clients)
	h.mu.Unlock()

	h.releaseNodes(nodes)
	metrics.WSConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client disconnected")
}

// dropClientLocked removes c and its subscriptions and closes its
// channels. It returns the nodes whose tree subscription c held.
func (h *Hub) dropClientLocked(c *Client) []nodetree.NodeID {
	delete(h.clients, c)
	c.closeSend()
	var nodes []nodetree.NodeID
	for node, set := range h.subs {
		held, ok := set[c]
		if !ok {
			continue
		}
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, node)
		}
		if held {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func (h *Hub) releaseNodes(nodes []nodetree.NodeID) {
	for _, node := range nodes {
		_ = h.tree.Unsubscribe(node)
	}
}

// dispatch delivers u to every subscriber of its node in client id order.
func (h *Hub) dispatch(u nodetree.ValueUpdate) {
	msg := Message{Type: MessageTypeValue, Data: ValueData{Path: u.Path, Value: u.Value, Time: u.Time.UTC()}}

	h.mu.Lock()
	set := h.subs[u.Node]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var released []nodetree.NodeID
	for _, c := range clients {
		select {
		case c.send <- msg:
			metrics.WSMessagesSent.Inc()
		default:
			// Slow consumer.
			released = append(released, h.dropClientLocked(c)...)
		}
	}
	h.mu.Unlock()
	h.releaseNodes(released)
}

// Subscribe binds c to the node at path and returns the node's current
// value, if any. A repeated subscribe of the same path is a no-op.
func (h *Hub) Subscribe(c *Client, path string) (any, bool, error) {
	node, ok := h.tree.Resolve(path)
	if !ok {
		return nil, false, ErrUnknownPath
	}

	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return nil, false, ErrNotSubscribed
	}
	set := h.subs[node]
	if set == nil {
		set = make(map[*Client]bool)
		h.subs[node] = set
	}
	_, already := set[c]
	if !already {
		set[c] = false
	}
	h.mu.Unlock()

	if !already {
		// The tree hook may reach the driver, so it runs unlocked.
		if err := h.tree.Subscribe(node); err != nil {
			h.forget(c, node)
			return nil, false, err
		}
		h.mu.Lock()
		_, still := h.subs[node][c]
		if still {
			h.subs[node][c] = true
		}
		h.mu.Unlock()
		if !still {
			// Dropped while subscribing.
			_ = h.tree.Unsubscribe(node)
			return nil, false, ErrNotSubscribed
		}
	}
	v, has := h.tree.Value(node)
	return v, has, nil
}

// Unsubscribe releases the binding of c to path.
func (h *Hub) Unsubscribe(c *Client, path string) error {
	node, ok := h.tree.Resolve(path)
	if !ok {
		return ErrUnknownPath
	}
	found, held := h.forget(c, node)
	if !found {
		return ErrNotSubscribed
	}
	if held {
		_ = h.tree.Unsubscribe(node)
	}
	return nil
}

func (h *Hub) forget(c *Client, node nodetree.NodeID) (found, held bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[node]
	held, found = set[c]
	if !found {
		return false, false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, node)
	}
	return true, held
}

// Subscriptions returns the number of clients watching the node at path.
func (h *Hub) Subscriptions(path string) int {
	node, ok := h.tree.Resolve(path)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[node])
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	count := h.GetClientCount()
	h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients closes every client in id order and releases their
// subscriptions.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	var released []nodetree.NodeID
	for _, c := range clients {
		released = append(released, h.dropClientLocked(c)...)
	}
	h.mu.Unlock()
	h.releaseNodes(released)
	metrics.WSConnections.Set(0)
}
