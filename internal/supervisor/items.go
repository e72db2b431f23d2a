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

	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/metrics"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// ItemHandler receives the client events of registered items.
type ItemHandler interface {
	SubscribeItem(item driver.Item)
	UnsubscribeItem(item driver.Item)
	WriteItem(ctx context.Context, item driver.Item, value any) error
}

// ItemRegistry maps item ids of one supervisor to their tree nodes and keeps
// the node wiring (subscription hooks, write handler, remove control) in
// step with the map.
type ItemRegistry struct {
	tree    *nodetree.Tree
	root    nodetree.NodeID
	handler ItemHandler

	mu    sync.RWMutex
	items map[string]driver.Item
}

// NewItemRegistry creates a registry for the supervisor node root.
func NewItemRegistry(tree *nodetree.Tree, root nodetree.NodeID, handler ItemHandler) *ItemRegistry {
	return &ItemRegistry{
		tree:    tree,
		root:    root,
		handler: handler,
		items:   make(map[string]driver.Item),
	}
}

// SetupNode registers an existing item node and wires it. The node must
// carry an item id attribute. Setting up the same id twice rebinds it to the
// new node.
func (r *ItemRegistry) SetupNode(node nodetree.NodeID) (driver.Item, error) {
	id, ok := r.tree.Attribute(node, AttrItemID)
	if !ok || id == "" {
		return driver.Item{}, fmt.Errorf("%w: node %s", ErrMissingItemID, r.tree.Path(node))
	}
	access, _ := r.tree.Attribute(node, AttrAccess)
	item := driver.Item{ID: id, Node: node, Access: driver.ParseAccessRights(access)}

	r.mu.Lock()
	_, existed := r.items[id]
	r.items[id] = item
	r.mu.Unlock()
	if !existed {
		metrics.ItemsRegistered.Inc()
	}

	r.tree.SetSubscriptionHooks(node,
		func() { r.handler.SubscribeItem(item) },
		func() { r.handler.UnsubscribeItem(item) },
	)
	if item.Access.Writable() {
		r.tree.SetWritable(node, func(ctx context.Context, value any) error {
			return r.handler.WriteItem(ctx, item, value)
		})
	} else {
		r.tree.SetWritable(node, nil)
	}

	_, err := r.tree.PutAction(node, ActionRemove, nodetree.NewAction(func(context.Context, nodetree.Invocation) error {
		r.Remove(id)
		return nil
	}))
	return item, err
}

// AddItem implements driver.ItemSink. It creates the folder chain and the
// item node below the supervisor and sets it up. Adding a known id is a
// no-op.
func (r *ItemRegistry) AddItem(folders []string, id string, access driver.AccessRights) error {
	if id == "" {
		return ErrMissingItemID
	}
	if _, ok := r.Get(id); ok {
		return nil
	}

	parent := r.root
	for _, f := range folders {
		if f == "" {
			continue
		}
		if r.reserved(parent, f) {
			return fmt.Errorf("%w: %q", ErrItemPath, f)
		}
		next, err := r.tree.CreateChild(parent, f)
		if err != nil {
			return fmt.Errorf("create folder %q: %w", f, err)
		}
		if !r.isFolder(next) {
			return fmt.Errorf("%w: %q", ErrItemPath, f)
		}
		parent = next
	}

	node, err := r.itemNode(parent, id)
	if err != nil {
		return fmt.Errorf("create item %q: %w", id, err)
	}
	if access == "" {
		access = driver.ReadOnly
	}
	r.tree.SetAttribute(node, AttrItemID, id)
	r.tree.SetAttribute(node, AttrAccess, string(access))
	_, err = r.SetupNode(node)
	return err
}

// maxNameSuffix bounds the ~N suffixes tried for a clashing item name.
const maxNameSuffix = 1000

// itemNode returns the node for item id below parent. An existing node is
// reused only when it already carries id; otherwise a free name is picked:
// the last id segment, the full id, then the full id with a ~N suffix.
// Control and status names below the supervisor are never used.
func (r *ItemRegistry) itemNode(parent nodetree.NodeID, id string) (nodetree.NodeID, error) {
	full := safeName(id)
	candidates := []string{itemNodeName(id), full}
	for i := 0; i < maxNameSuffix; i++ {
		name := fmt.Sprintf("%s~%d", full, i)
		if i < len(candidates) {
			name = candidates[i]
		}
		if r.reserved(parent, name) {
			continue
		}
		if existing, ok := r.tree.Child(parent, name); ok {
			other, _ := r.tree.Attribute(existing, AttrItemID)
			if other == id && !r.tree.HasAction(existing) {
				return existing, nil
			}
			continue
		}
		node, err := r.tree.AddChild(parent, name)
		if errors.Is(err, nodetree.ErrNameTaken) {
			continue
		}
		return node, err
	}
	return nodetree.InvalidNode, fmt.Errorf("%w: no free name for %q", nodetree.ErrNameTaken, id)
}

// reserved reports whether name belongs to a supervisor control or the
// status node. Controls come and go with the connection phase, so the names
// are kept free even while absent.
func (r *ItemRegistry) reserved(parent nodetree.NodeID, name string) bool {
	if parent != r.root {
		return false
	}
	switch name {
	case StatusNode, ActionEdit, ActionRefresh, ActionConnect, ActionDisconnect,
		ActionClear, ActionAddItem, ActionRemove:
		return true
	}
	return false
}

// isFolder reports whether node can hold items: it is neither a control nor
// an item.
func (r *ItemRegistry) isFolder(node nodetree.NodeID) bool {
	if r.tree.HasAction(node) {
		return false
	}
	_, isItem := r.tree.Attribute(node, AttrItemID)
	return !isItem
}

// Adopt sets up every item node already present below the supervisor, as
// left by a restored snapshot or a rename. It returns the number adopted.
func (r *ItemRegistry) Adopt() int {
	n := 0
	r.tree.Walk(r.root, func(id nodetree.NodeID) bool {
		if r.tree.HasAction(id) {
			return false
		}
		if _, ok := r.tree.Attribute(id, AttrItemID); ok {
			if _, err := r.SetupNode(id); err == nil {
				n++
			}
			return false
		}
		return true
	})
	return n
}

// Get returns the item registered under id.
func (r *ItemRegistry) Get(id string) (driver.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	return item, ok
}

// IDs returns the registered item ids in sorted order.
func (r *ItemRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Items returns a copy of every registered item.
func (r *ItemRegistry) Items() []driver.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]driver.Item, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	return out
}

// Len returns the number of registered items.
func (r *ItemRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Remove unregisters id, deletes its node and prunes containers left empty.
// Removing an unknown id is a no-op.
func (r *ItemRegistry) Remove(id string) bool {
	r.mu.Lock()
	item, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	metrics.ItemsRegistered.Dec()

	if r.tree.Subscribers(item.Node) > 0 {
		r.handler.UnsubscribeItem(item)
	}
	r.prune(item.Node)
	return true
}

// prune deletes node and walks upward deleting each container that became
// empty, stopping at the supervisor root.
func (r *ItemRegistry) prune(node nodetree.NodeID) {
	parent, hasParent := r.tree.Parent(node)
	r.tree.Remove(node)
	for hasParent && parent != r.root && r.tree.ChildCount(parent) == 0 {
		next, ok := r.tree.Parent(parent)
		r.tree.Remove(parent)
		parent, hasParent = next, ok
	}
}

// Clear empties the registry and deletes every child of the supervisor
// node that is neither a control nor the status node.
func (r *ItemRegistry) Clear() {
	r.release()
	for _, child := range r.tree.Children(r.root) {
		if r.tree.HasAction(child) || r.tree.Name(child) == StatusNode {
			continue
		}
		r.tree.Remove(child)
	}
}

// release empties the registry and stops driver subscriptions without
// touching the tree.
func (r *ItemRegistry) release() {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]driver.Item)
	r.mu.Unlock()

	metrics.ItemsRegistered.Sub(float64(len(items)))
	for _, item := range items {
		if r.tree.Subscribers(item.Node) > 0 {
			r.handler.UnsubscribeItem(item)
		}
	}
}
