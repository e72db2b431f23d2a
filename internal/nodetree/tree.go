// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package nodetree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Errors returned by Tree operations.
var (
	ErrNodeNotFound = errors.New("node not found")
	ErrInvalidName  = errors.New("invalid node name")
	ErrNoAction     = errors.New("node has no action")
	ErrNotWritable  = errors.New("node is not writable")
	ErrNameTaken    = errors.New("node name already in use")
	ErrRootNode     = errors.New("operation not permitted on root node")
)

// NodeID is a stable index into the tree arena. Zero is never a valid id.
type NodeID uint64

// InvalidNode is the zero NodeID.
const InvalidNode NodeID = 0

// PathSeparator separates node names in a path.
const PathSeparator = "/"

// SetHandler receives values written by clients to a writable node.
type SetHandler func(ctx context.Context, value any) error

// ValueUpdate describes a value change on a node.
type ValueUpdate struct {
	Node  NodeID
	Path  string
	Value any
	Time  time.Time
}

// ValueListener is notified of every value change in the tree.
type ValueListener func(ValueUpdate)

type node struct {
	id           NodeID
	name         string
	parent       NodeID
	children     []NodeID
	attrs        map[string]string
	action       *Action
	serializable bool
	value        any
	hasValue     bool
	onSet        SetHandler
	onSubscribe  func()
	onUnsub      func()
	subscribers  int
}

// Tree is an arena of nodes rooted at Root().
type Tree struct {
	mu     sync.RWMutex
	nodes  map[NodeID]*node
	nextID NodeID
	root   NodeID

	listenMu  sync.RWMutex
	listeners []ValueListener
}

// New creates a tree containing only the root node.
func New() *Tree {
	t := &Tree{nodes: make(map[NodeID]*node)}
	t.root = t.allocLocked("", InvalidNode)
	return t
}

// Root returns the id of the root node.
func (t *Tree) Root() NodeID {
	return t.root
}

func (t *Tree) allocLocked(name string, parent NodeID) NodeID {
	t.nextID++
	id := t.nextID
	t.nodes[id] = &node{
		id:           id,
		name:         name,
		parent:       parent,
		attrs:        make(map[string]string),
		serializable: true,
	}
	return id
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, PathSeparator)
}

// CreateChild returns the child of parent called name, creating it if it
// does not exist yet.
func (t *Tree) CreateChild(parent NodeID, name string) (NodeID, error) {
	if !validName(name) {
		return InvalidNode, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createChildLocked(parent, name)
}

// AddChild creates a child of parent called name. Unlike CreateChild it
// fails with ErrNameTaken when the name is already in use.
func (t *Tree) AddChild(parent NodeID, name string) (NodeID, error) {
	if !validName(name) {
		return InvalidNode, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.nodes[parent]
	if !ok {
		return InvalidNode, ErrNodeNotFound
	}
	if _, ok := t.childLocked(p, name); ok {
		return InvalidNode, fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	id := t.allocLocked(name, parent)
	p.children = append(p.children, id)
	return id, nil
}

func (t *Tree) createChildLocked(parent NodeID, name string) (NodeID, error) {
	p, ok := t.nodes[parent]
	if !ok {
		return InvalidNode, ErrNodeNotFound
	}
	if id, ok := t.childLocked(p, name); ok {
		return id, nil
	}
	id := t.allocLocked(name, parent)
	p.children = append(p.children, id)
	return id, nil
}

func (t *Tree) childLocked(p *node, name string) (NodeID, bool) {
	for _, cid := range p.children {
		if c := t.nodes[cid]; c != nil && c.name == name {
			return cid, true
		}
	}
	return InvalidNode, false
}

// Child looks up a direct child by name.
func (t *Tree) Child(parent NodeID, name string) (NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.nodes[parent]
	if !ok {
		return InvalidNode, false
	}
	return t.childLocked(p, name)
}

// Children returns the ordered child ids of a node.
func (t *Tree) Children(id NodeID) []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]NodeID, len(n.children))
	copy(out, n.children)
	return out
}

// ChildCount returns the number of children, or 0 for a missing node.
func (t *Tree) ChildCount(id NodeID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n, ok := t.nodes[id]; ok {
		return len(n.children)
	}
	return 0
}

// Parent returns the parent of a node. The root has no parent.
func (t *Tree) Parent(id NodeID) (NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok || n.parent == InvalidNode {
		return InvalidNode, false
	}
	return n.parent, true
}

// Name returns the name of a node, or "" if it does not exist.
func (t *Tree) Name(id NodeID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n, ok := t.nodes[id]; ok {
		return n.name
	}
	return ""
}

// Exists reports whether id refers to a live node.
func (t *Tree) Exists(id NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[id]
	return ok
}

// Len returns the number of live nodes including the root.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Path returns the slash separated path of a node. The root is "/".
func (t *Tree) Path(id NodeID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pathLocked(id)
}

func (t *Tree) pathLocked(id NodeID) string {
	var parts []string
	for cur := id; cur != t.root; {
		n, ok := t.nodes[cur]
		if !ok {
			return ""
		}
		parts = append(parts, n.name)
		cur = n.parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return PathSeparator + strings.Join(parts, PathSeparator)
}

// Resolve finds the node at path. Empty segments are ignored.
func (t *Tree) Resolve(path string) (NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur := t.root
	for _, part := range strings.Split(path, PathSeparator) {
		if part == "" {
			continue
		}
		n := t.nodes[cur]
		next, ok := t.childLocked(n, part)
		if !ok {
			return InvalidNode, false
		}
		cur = next
	}
	return cur, true
}

// Remove deletes a node and its whole subtree and unlinks it from its
// parent. It returns false if the node was already gone. The root cannot be
// removed; use ClearChildren instead.
func (t *Tree) Remove(id NodeID) bool {
	if id == t.root {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(id)
}

func (t *Tree) removeLocked(id NodeID) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	if p, ok := t.nodes[n.parent]; ok {
		for i, cid := range p.children {
			if cid == id {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
	}
	t.deleteSubtreeLocked(id)
	return true
}

func (t *Tree) deleteSubtreeLocked(id NodeID) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	for _, cid := range n.children {
		t.deleteSubtreeLocked(cid)
	}
	delete(t.nodes, id)
}

// RemoveChild removes the named child of parent if present.
func (t *Tree) RemoveChild(parent NodeID, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.nodes[parent]
	if !ok {
		return false
	}
	id, ok := t.childLocked(p, name)
	if !ok {
		return false
	}
	return t.removeLocked(id)
}

// ClearChildren removes every child of a node.
func (t *Tree) ClearChildren(id NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	for _, cid := range n.children {
		t.deleteSubtreeLocked(cid)
	}
	n.children = nil
}

// SetAttribute sets a persisted string attribute.
func (t *Tree) SetAttribute(id NodeID, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[id]; ok {
		n.attrs[key] = value
	}
}

// Attribute returns an attribute value.
func (t *Tree) Attribute(id NodeID, key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return "", false
	}
	v, ok := n.attrs[key]
	return v, ok
}

// Attributes returns a copy of all attributes of a node.
func (t *Tree) Attributes(id NodeID) map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		out[k] = v
	}
	return out
}

// SetSerializable controls whether the node is included in snapshots.
func (t *Tree) SetSerializable(id NodeID, serializable bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[id]; ok {
		n.serializable = serializable
	}
}

// SetValue updates the value of a node and notifies value listeners.
func (t *Tree) SetValue(id NodeID, value any) {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	n.value = value
	n.hasValue = true
	update := ValueUpdate{Node: id, Path: t.pathLocked(id), Value: value, Time: time.Now()}
	t.mu.Unlock()

	t.listenMu.RLock()
	listeners := t.listeners
	t.listenMu.RUnlock()
	for _, l := range listeners {
		l(update)
	}
}

// Value returns the current value of a node.
func (t *Tree) Value(id NodeID) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok || !n.hasValue {
		return nil, false
	}
	return n.value, true
}

// SetWritable installs a write handler. A nil handler makes the node
// read-only.
func (t *Tree) SetWritable(id NodeID, handler SetHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[id]; ok {
		n.onSet = handler
	}
}

// Writable reports whether clients may write to the node.
func (t *Tree) Writable(id NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return ok && n.onSet != nil
}

// Write passes a client value to the node's write handler.
func (t *Tree) Write(ctx context.Context, id NodeID, value any) error {
	t.mu.RLock()
	n, ok := t.nodes[id]
	var handler SetHandler
	if ok {
		handler = n.onSet
	}
	t.mu.RUnlock()

	if !ok {
		return ErrNodeNotFound
	}
	if handler == nil {
		return ErrNotWritable
	}
	return handler(ctx, value)
}

// SetSubscriptionHooks installs the functions called when the first client
// subscribes and when the last client unsubscribes.
func (t *Tree) SetSubscriptionHooks(id NodeID, onSubscribe, onUnsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[id]; ok {
		n.onSubscribe = onSubscribe
		n.onUnsub = onUnsubscribe
	}
}

// Subscribe registers a client subscription on a node.
func (t *Tree) Subscribe(id NodeID) error {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return ErrNodeNotFound
	}
	n.subscribers++
	var hook func()
	if n.subscribers == 1 {
		hook = n.onSubscribe
	}
	t.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Unsubscribe removes a client subscription. Unsubscribing from a removed
// node is not an error.
func (t *Tree) Unsubscribe(id NodeID) error {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if !ok || n.subscribers == 0 {
		t.mu.Unlock()
		return nil
	}
	n.subscribers--
	var hook func()
	if n.subscribers == 0 {
		hook = n.onUnsub
	}
	t.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Subscribers returns the number of active client subscriptions.
func (t *Tree) Subscribers(id NodeID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n, ok := t.nodes[id]; ok {
		return n.subscribers
	}
	return 0
}

// OnValueChange registers a listener for every value change in the tree.
func (t *Tree) OnValueChange(l ValueListener) {
	t.listenMu.Lock()
	defer t.listenMu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Walk visits the descendants of id in pre-order. Returning false from fn
// skips the children of the visited node.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	for _, cid := range t.Children(id) {
		if fn(cid) {
			t.Walk(cid, fn)
		}
	}
}
