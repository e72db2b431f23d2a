// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package nodetree

import (
	"context"
	"fmt"
	"strings"
)

// ParamType is the type of an action parameter.
type ParamType string

// Parameter types understood by clients.
const (
	ParamString ParamType = "string"
	ParamEnum   ParamType = "enum"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
)

// Param describes one typed action parameter.
type Param struct {
	Name    string    `json:"name"`
	Type    ParamType `json:"type"`
	Enum    []string  `json:"enum,omitempty"`
	Default string    `json:"default,omitempty"`
}

// StringParam returns a string parameter with an optional default.
func StringParam(name, def string) Param {
	return Param{Name: name, Type: ParamString, Default: def}
}

// EnumParam returns an enum parameter.
func EnumParam(name string, values []string) Param {
	return Param{Name: name, Type: ParamEnum, Enum: values}
}

// Invocation carries the parameters of one action call.
type Invocation struct {
	Node   NodeID
	Params map[string]string
}

// String returns a parameter value with surrounding whitespace removed.
func (i Invocation) String(name string) string {
	return strings.TrimSpace(i.Params[name])
}

// ActionHandler runs when a client invokes an action node.
type ActionHandler func(ctx context.Context, inv Invocation) error

// Action turns a node into a control.
type Action struct {
	Params  []Param
	Handler ActionHandler
}

// NewAction builds an action from a handler and its parameters.
func NewAction(handler ActionHandler, params ...Param) *Action {
	return &Action{Params: params, Handler: handler}
}

// SetAction attaches an action to a node. A nil action removes it.
func (t *Tree) SetAction(id NodeID, action *Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[id]; ok {
		n.action = action
	}
}

// PutAction creates (or reuses) the named non-serializable child of parent
// and binds action to it.
func (t *Tree) PutAction(parent NodeID, name string, action *Action) (NodeID, error) {
	if !validName(name) {
		return InvalidNode, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id, err := t.createChildLocked(parent, name)
	if err != nil {
		return InvalidNode, err
	}
	n := t.nodes[id]
	n.action = action
	n.serializable = false
	return id, nil
}

// HasAction reports whether the node is a control.
func (t *Tree) HasAction(id NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return ok && n.action != nil
}

// ActionParams returns the parameter list of a control node.
func (t *Tree) ActionParams(id NodeID) []Param {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok || n.action == nil {
		return nil
	}
	out := make([]Param, len(n.action.Params))
	copy(out, n.action.Params)
	return out
}

// Invoke runs the action bound to a node. The handler runs without the tree
// lock held.
func (t *Tree) Invoke(ctx context.Context, id NodeID, params map[string]string) error {
	t.mu.RLock()
	n, ok := t.nodes[id]
	var action *Action
	if ok {
		action = n.action
	}
	t.mu.RUnlock()

	if !ok {
		return ErrNodeNotFound
	}
	if action == nil || action.Handler == nil {
		return ErrNoAction
	}
	merged := make(map[string]string, len(params)+len(action.Params))
	for _, p := range action.Params {
		if p.Default != "" {
			merged[p.Name] = p.Default
		}
	}
	for k, v := range params {
		merged[k] = v
	}
	return action.Handler(ctx, Invocation{Node: id, Params: merged})
}

// NodeInfo is a read-only description of a node for clients.
type NodeInfo struct {
	ID          NodeID            `json:"id"`
	Name        string            `json:"name"`
	Path        string            `json:"path"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Value       any               `json:"value,omitempty"`
	Writable    bool              `json:"writable"`
	IsAction    bool              `json:"action"`
	Params      []Param           `json:"params,omitempty"`
	Subscribers int               `json:"subscribers"`
	Children    []string          `json:"children,omitempty"`
}

// Describe returns a NodeInfo for id.
func (t *Tree) Describe(id NodeID) (NodeInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return NodeInfo{}, ErrNodeNotFound
	}

	info := NodeInfo{
		ID:          id,
		Name:        n.name,
		Path:        t.pathLocked(id),
		Writable:    n.onSet != nil,
		IsAction:    n.action != nil,
		Subscribers: n.subscribers,
	}
	if len(n.attrs) > 0 {
		info.Attributes = make(map[string]string, len(n.attrs))
		for k, v := range n.attrs {
			info.Attributes[k] = v
		}
	}
	if n.hasValue {
		info.Value = n.value
	}
	if n.action != nil {
		info.Params = append([]Param(nil), n.action.Params...)
	}
	for _, cid := range n.children {
		if c := t.nodes[cid]; c != nil {
			info.Children = append(info.Children, c.name)
		}
	}
	return info, nil
}
