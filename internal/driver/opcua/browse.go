// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package opcua

import (
	"context"
	"errors"
	"fmt"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/logging"
)

// Bits of the AccessLevel attribute.
const (
	accessCurrentRead  = 0x01
	accessCurrentWrite = 0x02
)

// browseEntry is one hierarchical child of a node.
type browseEntry struct {
	ID     *ua.NodeID
	Name   string
	Class  ua.NodeClass
	Access byte
}

// nodeSource lists the object and variable children of a node.
type nodeSource interface {
	Browse(ctx context.Context, parent *ua.NodeID) ([]browseEntry, error)
}

// clientSource browses a live session.
type clientSource struct {
	c *opcua.Client
}

// Browse implements nodeSource.
func (s clientSource) Browse(ctx context.Context, parent *ua.NodeID) ([]browseEntry, error) {
	refs, err := s.c.Node(parent).ReferencedNodes(ctx,
		id.HierarchicalReferences,
		ua.BrowseDirectionForward,
		ua.NodeClassObject|ua.NodeClassVariable,
		true,
	)
	if err != nil {
		return nil, err
	}
	out := make([]browseEntry, 0, len(refs))
	for _, n := range refs {
		attrs, err := n.Attributes(ctx, ua.AttributeIDNodeClass, ua.AttributeIDBrowseName, ua.AttributeIDAccessLevel)
		if err != nil {
			return nil, fmt.Errorf("attributes of %s: %w", n.ID, err)
		}
		out = append(out, entryFromAttributes(n.ID, attrs))
	}
	return out, nil
}

// entryFromAttributes decodes NodeClass, BrowseName and AccessLevel values.
func entryFromAttributes(nid *ua.NodeID, attrs []*ua.DataValue) browseEntry {
	e := browseEntry{ID: nid, Name: nid.String()}
	value := func(i int) any {
		if i >= len(attrs) || attrs[i] == nil || attrs[i].Value == nil {
			return nil
		}
		return attrs[i].Value.Value()
	}
	if v, ok := value(0).(int32); ok {
		e.Class = ua.NodeClass(v)
	}
	if qn, ok := value(1).(*ua.QualifiedName); ok && qn != nil && qn.Name != "" {
		e.Name = qn.Name
	}
	if v, ok := value(2).(uint8); ok {
		e.Access = v
	}
	return e
}

// accessRights maps an AccessLevel attribute to driver access rights.
func accessRights(level byte) driver.AccessRights {
	read := level&accessCurrentRead != 0
	write := level&accessCurrentWrite != 0
	switch {
	case read && write:
		return driver.ReadWrite
	case write:
		return driver.WriteOnly
	default:
		return driver.ReadOnly
	}
}

// walker announces every variable below a root node.
type walker struct {
	src      nodeSource
	sink     driver.ItemSink
	maxDepth int
	maxItems int

	seen  map[string]struct{}
	count int
	errs  []error
}

func (w *walker) walk(ctx context.Context, root *ua.NodeID) error {
	w.seen = map[string]struct{}{root.String(): {}}
	if err := w.descend(ctx, root, nil, 1); err != nil {
		return err
	}
	logging.Debug().Int("items", w.count).Str("root", root.String()).Msg("OPC UA browse complete")
	return errors.Join(w.errs...)
}

func (w *walker) descend(ctx context.Context, parent *ua.NodeID, folders []string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := w.src.Browse(ctx, parent)
	if err != nil {
		return fmt.Errorf("opcua: browse %s: %w", parent, err)
	}
	for _, e := range entries {
		if e.ID == nil {
			continue
		}
		key := e.ID.String()
		if _, dup := w.seen[key]; dup {
			continue
		}
		w.seen[key] = struct{}{}

		switch e.Class {
		case ua.NodeClassVariable:
			if w.count >= w.maxItems {
				logging.Warn().Int("max_items", w.maxItems).Msg("OPC UA browse item limit reached")
				return nil
			}
			if err := w.sink.AddItem(folders, key, accessRights(e.Access)); err != nil {
				w.errs = append(w.errs, err)
				continue
			}
			w.count++
		case ua.NodeClassObject:
			// Namespace 0 holds the Server object and its diagnostics.
			if e.ID.Namespace() == 0 || depth >= w.maxDepth {
				continue
			}
			sub := append(append([]string(nil), folders...), e.Name)
			if err := w.descend(ctx, e.ID, sub, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizeValue turns structured OPC UA values into plain values.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case *ua.LocalizedText:
		if x == nil {
			return nil
		}
		return x.Text
	case *ua.QualifiedName:
		if x == nil {
			return nil
		}
		return x.Name
	case *ua.NodeID:
		if x == nil {
			return nil
		}
		return x.String()
	case ua.StatusCode:
		return uint32(x)
	default:
		return v
	}
}
