// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

// Package driver defines the protocol seam between a connection supervisor
// and a concrete data-acquisition binding.
//
// A supervisor never inspects protocol internals. It holds one Driver per
// server and calls it to connect, health-check, subscribe and write.
// Bindings register a Factory under a name so that persisted supervisors
// can be rebuilt with the same binding after a restart.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tomtom215/opclink/internal/nodetree"
)

// Errors shared by drivers.
var (
	ErrNotConnected  = errors.New("driver not connected")
	ErrUnknownItem   = errors.New("unknown item")
	ErrUnknownDriver = errors.New("unknown driver")
	ErrReadOnly      = errors.New("item is read-only")
)

// Credentials identify the remote host and the account used to reach it.
type Credentials struct {
	Host     string
	Domain   string
	User     string
	Password string
}

// Target is everything a driver needs to open one server connection.
type Target struct {
	Credentials
	ServerID string
	Settings map[string]string
}

// AccessRights classifies what clients may do with an item.
type AccessRights string

// Access rights values. ParseAccessRights also accepts the legacy spellings.
const (
	ReadOnly  AccessRights = "read-only"
	ReadWrite AccessRights = "read-write"
	WriteOnly AccessRights = "write-only"
)

// ParseAccessRights maps a persisted attribute to AccessRights. Unknown
// values are treated as read-only.
func ParseAccessRights(s string) AccessRights {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read-write", "readwritable", "rw":
		return ReadWrite
	case "write-only", "writable", "w":
		return WriteOnly
	default:
		return ReadOnly
	}
}

// Writable reports whether clients may write the item.
func (a AccessRights) Writable() bool {
	return a == ReadWrite || a == WriteOnly
}

// Readable reports whether the item produces values.
func (a AccessRights) Readable() bool {
	return a == ReadOnly || a == ReadWrite
}

// Item is one data point bound to a tree node.
type Item struct {
	ID     string
	Node   nodetree.NodeID
	Access AccessRights
}

// ItemSink receives the items a driver announces after connecting. folders
// is the container path below the supervisor node, which may be empty.
type ItemSink interface {
	AddItem(folders []string, id string, access AccessRights) error
}

// Publisher delivers a new value for a subscribed item.
type Publisher func(value any)

// Driver is the capability set a protocol binding implements.
type Driver interface {
	// Connect opens the connection described by target. It may block for a
	// network round trip and must honor ctx.
	Connect(ctx context.Context, target Target) error

	// Disconnect releases the connection. It is safe on a closed driver.
	Disconnect(ctx context.Context) error

	// IsConnected is the health check. It must not block.
	IsConnected() bool

	// OnConnected runs after a successful Connect and may announce items.
	OnConnected(ctx context.Context, sink ItemSink) error

	// Subscribe starts delivering values of item to publish.
	Subscribe(ctx context.Context, item Item, publish Publisher) error

	// Unsubscribe stops value delivery for item.
	Unsubscribe(ctx context.Context, item Item) error

	// Write sends a client value to item.
	Write(ctx context.Context, item Item, value any) error

	// EditParams lists the driver-specific parameters of the supervisor
	// edit control, pre-filled from the current settings.
	EditParams(settings map[string]string) []nodetree.Param
}

// Factory builds a fresh, unconnected driver.
type Factory func() Driver

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available by name. Registering the same name
// twice replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return f, nil
}

// Names lists registered driver names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
