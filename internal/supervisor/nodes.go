// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package supervisor

import (
	"errors"
	"strings"
	"time"

	"github.com/tomtom215/opclink/internal/discovery"
	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/nodetree"
	"github.com/tomtom215/opclink/internal/scheduler"
)

// Persisted attribute names.
const (
	AttrHost     = "host"
	AttrDomain   = "domain"
	AttrUser     = "user"
	AttrPassword = "password"
	AttrServerID = "server id"
	AttrDriver   = "driver"
	AttrItemID   = "item id"
	AttrAccess   = "access rights"

	// SettingPrefix marks supervisor attributes that are driver settings.
	SettingPrefix = "setting."
)

// Node and control names.
const (
	StatusNode = "STATUS"

	ActionAddConnection = "add connection"
	ActionAddServer     = "add server"
	ActionAddItem       = "add item"
	ActionEdit          = "edit"
	ActionRefresh       = "refresh"
	ActionConnect       = "connect"
	ActionDisconnect    = "disconnect"
	ActionClear         = "clear"
	ActionRemove        = "remove"
)

// Status values shown on the STATUS node.
const (
	StatusConnecting   = "Connecting..."
	StatusConnected    = "Connected"
	StatusNotConnected = "Not Connected"
)

// Action parameter names.
const (
	ParamName           = "name"
	ParamServerID       = "server id"
	ParamManualServerID = "server id (manual entry)"
	ParamDriver         = "driver"
	ParamItemID         = "item id"
	ParamPath           = "path"
	ParamAccess         = "access rights"
)

// Errors returned by the supervisor hierarchy.
var (
	ErrRemoved        = errors.New("already removed")
	ErrServerExists   = errors.New("server already exists")
	ErrMissingName    = errors.New("name is required")
	ErrMissingServer  = errors.New("server id is required")
	ErrMissingItemID  = errors.New("item id is required")
	ErrEndpointExists = errors.New("connection already exists")
	ErrItemPath       = errors.New("item path crosses a control, status or item node")
)

// Options tune every supervisor in a Link.
type Options struct {
	// PingInterval is the health-check period.
	PingInterval time.Duration

	// MaxPingSkip caps the number of ping cycles skipped after a lost
	// connection.
	MaxPingSkip int

	// ConnectTimeout bounds a single driver Connect call.
	ConnectTimeout time.Duration

	// DefaultDriver is used for servers that do not name one.
	DefaultDriver string
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval:   5 * time.Second,
		MaxPingSkip:    60,
		ConnectTimeout: 30 * time.Second,
		DefaultDriver:  "sim",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.MaxPingSkip <= 0 {
		o.MaxPingSkip = def.MaxPingSkip
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.DefaultDriver == "" {
		o.DefaultDriver = def.DefaultDriver
	}
	return o
}

// Deps are the collaborators shared by a Link and everything below it.
type Deps struct {
	Tree      *nodetree.Tree
	Scheduler scheduler.Scheduler

	// Discovery may be nil, in which case "add server" only offers manual
	// entry.
	Discovery discovery.Discoverer

	// Drivers resolves a driver name. It defaults to driver.Lookup.
	Drivers func(name string) (driver.Factory, error)

	Options Options
}

func (d *Deps) withDefaults() *Deps {
	out := *d
	if out.Drivers == nil {
		out.Drivers = driver.Lookup
	}
	out.Options = out.Options.withDefaults()
	return &out
}

// itemNodeName derives a node name from an item id: the last dotted
// segment, or the whole id with separators replaced.
func itemNodeName(id string) string {
	name := id
	if i := strings.LastIndex(id, "."); i >= 0 && i < len(id)-1 {
		name = id[i+1:]
	}
	return safeName(name)
}

// safeName replaces path separators so s can be used as a node name.
func safeName(s string) string {
	return strings.ReplaceAll(s, nodetree.PathSeparator, "_")
}

// settingsFromAttrs extracts driver settings from supervisor attributes.
func settingsFromAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range attrs {
		if strings.HasPrefix(k, SettingPrefix) {
			out[strings.TrimPrefix(k, SettingPrefix)] = v
		}
	}
	return out
}
