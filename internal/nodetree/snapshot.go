// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package nodetree

import "fmt"

// Snapshot is the serializable form of a subtree. Non-serializable nodes
// (controls, status values) are omitted along with their descendants.
type Snapshot struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Children   []*Snapshot       `json:"children,omitempty"`
}

// Snapshot captures the serializable subtree rooted at id. The root of the
// snapshot is always included, even if it is itself non-serializable.
func (t *Tree) Snapshot(id NodeID) (*Snapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return t.snapshotLocked(n), nil
}

func (t *Tree) snapshotLocked(n *node) *Snapshot {
	s := &Snapshot{Name: n.name}
	if len(n.attrs) > 0 {
		s.Attributes = make(map[string]string, len(n.attrs))
		for k, v := range n.attrs {
			s.Attributes[k] = v
		}
	}
	for _, cid := range n.children {
		c := t.nodes[cid]
		if c == nil || !c.serializable {
			continue
		}
		s.Children = append(s.Children, t.snapshotLocked(c))
	}
	return s
}

// Load recreates snap as a child of parent, merging into an existing child
// with the same name. It returns the id of the subtree root.
func (t *Tree) Load(parent NodeID, snap *Snapshot) (NodeID, error) {
	if snap == nil || !validName(snap.Name) {
		return InvalidNode, ErrInvalidName
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(parent, snap.Name, snap)
}

// LoadChildren recreates every child of snap under parent. It is used to
// restore a whole-tree snapshot into a fresh root.
func (t *Tree) LoadChildren(parent NodeID, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range snap.Children {
		if !validName(c.Name) {
			continue
		}
		if _, err := t.loadLocked(parent, c.Name, c); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) loadLocked(parent NodeID, name string, snap *Snapshot) (NodeID, error) {
	id, err := t.createChildLocked(parent, name)
	if err != nil {
		return InvalidNode, err
	}
	n := t.nodes[id]
	for k, v := range snap.Attributes {
		n.attrs[k] = v
	}
	for _, c := range snap.Children {
		if !validName(c.Name) {
			continue
		}
		if _, err := t.loadLocked(id, c.Name, c); err != nil {
			return InvalidNode, err
		}
	}
	return id, nil
}

// Rename copies the serializable subtree of id to a sibling called newName
// and removes the original, all in one critical section. The returned id is
// the new subtree root; non-serializable nodes are not carried over and must
// be recreated by their owner.
func (t *Tree) Rename(id NodeID, newName string) (NodeID, error) {
	if id == t.root {
		return InvalidNode, ErrRootNode
	}
	if !validName(newName) {
		return InvalidNode, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return InvalidNode, ErrNodeNotFound
	}
	if n.name == newName {
		return id, nil
	}
	p, ok := t.nodes[n.parent]
	if !ok {
		return InvalidNode, ErrNodeNotFound
	}
	if _, taken := t.childLocked(p, newName); taken {
		return InvalidNode, fmt.Errorf("%w: %q", ErrNameTaken, newName)
	}

	snap := t.snapshotLocked(n)
	newID, err := t.loadLocked(n.parent, newName, snap)
	if err != nil {
		return InvalidNode, err
	}
	t.removeLocked(id)
	return newID, nil
}
