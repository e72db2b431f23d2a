// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

// Package sim is an in-process driver that behaves like a small OPC
// simulation server. It is the default driver for local runs and the test
// double used by the supervisor tests: connect failures, connection drops
// and item values can all be controlled from the outside.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// Name is the registry name of this driver.
const Name = "sim"

// Settings keys understood by the driver.
const (
	SettingItems    = "items"
	SettingInterval = "interval"
)

// DefaultItems is announced when a target carries no items setting.
const DefaultItems = "Random/Int4:read-only,Random/Real8:read-only,Bucket/Setpoint:read-write"

// ErrConnectRefused is returned by Connect while failures are enabled.
var ErrConnectRefused = errors.New("sim: connection refused")

// ItemSpec is one item announced after connecting.
type ItemSpec struct {
	Folders []string
	ID      string
	Access  driver.AccessRights
}

// ParseItems parses "Folder/Sub/Name:access,..." into item specs. The item id
// is the dotted path.
func ParseItems(s string) ([]ItemSpec, error) {
	var out []ItemSpec
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		path, access, _ := strings.Cut(entry, ":")
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) == 0 || parts[len(parts)-1] == "" {
			return nil, fmt.Errorf("sim: invalid item %q", entry)
		}
		out = append(out, ItemSpec{
			Folders: parts[:len(parts)-1],
			ID:      strings.Join(parts, "."),
			Access:  driver.ParseAccessRights(access),
		})
	}
	return out, nil
}

// Fleet builds sim drivers and keeps a handle on each of them so tests can
// reach the driver a supervisor is using.
type Fleet struct {
	mu          sync.Mutex
	drivers     []*Driver
	failConnect bool
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{}
}

// Factory returns a driver.Factory producing drivers owned by the fleet.
func (f *Fleet) Factory() driver.Factory {
	return func() driver.Driver {
		f.mu.Lock()
		defer f.mu.Unlock()
		d := New()
		d.failConnect = f.failConnect
		f.drivers = append(f.drivers, d)
		return d
	}
}

// SetFailConnect makes Connect fail on every current and future driver.
func (f *Fleet) SetFailConnect(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failConnect = fail
	for _, d := range f.drivers {
		d.SetFailConnect(fail)
	}
}

// Drivers returns every driver built so far.
func (f *Fleet) Drivers() []*Driver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Driver(nil), f.drivers...)
}

// Last returns the most recently built driver, or nil.
func (f *Fleet) Last() *Driver {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.drivers) == 0 {
		return nil
	}
	return f.drivers[len(f.drivers)-1]
}

//nolint:gochecknoinits // drivers self-register by name
func init() {
	driver.Register(Name, func() driver.Driver { return New() })
}

// Driver is a simulated server connection.
type Driver struct {
	mu          sync.Mutex
	connected   bool
	failConnect bool
	target      driver.Target
	items       map[string]ItemSpec
	values      map[string]any
	publishers  map[string]driver.Publisher
	stopGen     map[string]chan struct{}
	interval    time.Duration
	connects    int
	disconnects int
	writes      map[string]any

	defaultItems string
}

// New creates a disconnected driver.
func New() *Driver {
	return &Driver{
		items:      make(map[string]ItemSpec),
		values:     make(map[string]any),
		publishers: make(map[string]driver.Publisher),
		stopGen:    make(map[string]chan struct{}),
		writes:     make(map[string]any),
	}
}

// NewWithItems creates a driver that announces items, in ParseItems form,
// for targets without an items setting.
func NewWithItems(items string) *Driver {
	d := New()
	d.defaultItems = items
	return d
}

// SetFailConnect makes subsequent Connect calls fail.
func (d *Driver) SetFailConnect(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failConnect = fail
}

// Drop simulates the server going away without a Disconnect call.
func (d *Driver) Drop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.stopGeneratorsLocked()
}

// Connect implements driver.Driver.
func (d *Driver) Connect(ctx context.Context, target driver.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	d.target = target
	if d.failConnect {
		d.connected = false
		return fmt.Errorf("%w: %s on %s", ErrConnectRefused, target.ServerID, target.Host)
	}
	if target.ServerID == "" {
		return fmt.Errorf("sim: empty server id")
	}

	spec := target.Settings[SettingItems]
	if spec == "" {
		spec = d.defaultItems
	}
	if spec == "" {
		spec = DefaultItems
	}
	items, err := ParseItems(spec)
	if err != nil {
		return err
	}
	d.items = make(map[string]ItemSpec, len(items))
	for _, it := range items {
		d.items[it.ID] = it
	}
	d.interval = 0
	if v := target.Settings[SettingInterval]; v != "" {
		if iv, err := time.ParseDuration(v); err == nil && iv > 0 {
			d.interval = iv
		}
	}
	d.connected = true
	return nil
}

// Disconnect implements driver.Driver.
func (d *Driver) Disconnect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
	d.connected = false
	d.stopGeneratorsLocked()
	return nil
}

func (d *Driver) stopGeneratorsLocked() {
	for id, ch := range d.stopGen {
		close(ch)
		delete(d.stopGen, id)
	}
}

// IsConnected implements driver.Driver.
func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// OnConnected implements driver.Driver by announcing the configured items.
func (d *Driver) OnConnected(_ context.Context, sink driver.ItemSink) error {
	d.mu.Lock()
	items := make([]ItemSpec, 0, len(d.items))
	for _, it := range d.items {
		items = append(items, it)
	}
	d.mu.Unlock()

	var errs []error
	for _, it := range items {
		if err := sink.AddItem(it.Folders, it.ID, it.Access); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe implements driver.Driver. The current value, if any, is
// published immediately.
func (d *Driver) Subscribe(_ context.Context, item driver.Item, publish driver.Publisher) error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return driver.ErrNotConnected
	}
	d.publishers[item.ID] = publish
	v, hasValue := d.values[item.ID]
	if d.interval > 0 {
		if _, running := d.stopGen[item.ID]; !running {
			stop := make(chan struct{})
			d.stopGen[item.ID] = stop
			go d.generate(item.ID, d.interval, stop)
		}
	}
	d.mu.Unlock()

	if hasValue && publish != nil {
		publish(v)
	}
	return nil
}

// generate produces a random walk for one item until stop is closed.
func (d *Driver) generate(id string, interval time.Duration, stop chan struct{}) {
	tk := time.NewTicker(interval)
	defer tk.Stop()
	cur := rand.Float64() * 100
	for {
		select {
		case <-stop:
			return
		case <-tk.C:
			cur += rand.Float64()*2 - 1
			d.Publish(id, strconv.FormatFloat(cur, 'f', 3, 64))
		}
	}
}

// Unsubscribe implements driver.Driver.
func (d *Driver) Unsubscribe(_ context.Context, item driver.Item) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.publishers, item.ID)
	if ch, ok := d.stopGen[item.ID]; ok {
		close(ch)
		delete(d.stopGen, item.ID)
	}
	return nil
}

// Write implements driver.Driver. A written value is also published to the
// item's subscriber.
func (d *Driver) Write(_ context.Context, item driver.Item, value any) error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return driver.ErrNotConnected
	}
	if !item.Access.Writable() {
		d.mu.Unlock()
		return driver.ErrReadOnly
	}
	d.writes[item.ID] = value
	d.mu.Unlock()

	d.Publish(item.ID, value)
	return nil
}

// Publish sets the value of an item and delivers it to its subscriber.
func (d *Driver) Publish(id string, value any) {
	d.mu.Lock()
	d.values[id] = value
	publish := d.publishers[id]
	d.mu.Unlock()
	if publish != nil {
		publish(value)
	}
}

// EditParams implements driver.Driver.
func (d *Driver) EditParams(settings map[string]string) []nodetree.Param {
	return []nodetree.Param{
		nodetree.StringParam(SettingItems, settings[SettingItems]),
		nodetree.StringParam(SettingInterval, settings[SettingInterval]),
	}
}

// Subscribed reports whether id currently has a subscriber.
func (d *Driver) Subscribed(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.publishers[id]
	return ok
}

// Written returns the last value written to id.
func (d *Driver) Written(id string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.writes[id]
	return v, ok
}

// Connects returns how many times Connect was called.
func (d *Driver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Disconnects returns how many times Disconnect was called.
func (d *Driver) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// Target returns the target of the last Connect call.
func (d *Driver) Target() driver.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}
