// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package opcua

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// Name is the registry name of this driver.
const Name = "opcua"

// Settings keys understood by the driver.
const (
	SettingEndpoint = "endpoint"
	SettingPort     = "port"
	SettingRoot     = "root"
	SettingDepth    = "depth"
	SettingInterval = "interval"
)

// ErrInvalidEndpoint is returned when no endpoint URL can be built from a
// target.
var ErrInvalidEndpoint = errors.New("opcua: invalid endpoint")

// Config holds driver-wide defaults. Per-server settings override them.
type Config struct {
	// Port is used when neither the server id nor the settings name one.
	Port int

	// RequestTimeout bounds every service call.
	RequestTimeout time.Duration

	// PublishInterval of the value subscription.
	PublishInterval time.Duration

	// BrowseDepth limits how deep OnConnected descends.
	BrowseDepth int

	// MaxItems caps the number of items announced per server.
	MaxItems int
}

// DefaultConfig returns the defaults used by the registered factory.
func DefaultConfig() Config {
	return Config{
		Port:            4840,
		RequestTimeout:  10 * time.Second,
		PublishInterval: time.Second,
		BrowseDepth:     4,
		MaxItems:        2000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Port <= 0 {
		c.Port = def.Port
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = def.PublishInterval
	}
	if c.BrowseDepth <= 0 {
		c.BrowseDepth = def.BrowseDepth
	}
	if c.MaxItems <= 0 {
		c.MaxItems = def.MaxItems
	}
	return c
}

//nolint:gochecknoinits // drivers self-register by name
func init() {
	driver.Register(Name, Factory(DefaultConfig()))
}

// Factory returns a driver.Factory producing drivers with cfg.
func Factory(cfg Config) driver.Factory {
	return func() driver.Driver { return New(cfg) }
}

// monitored is one item with an active monitored item.
type monitored struct {
	itemID    string
	handle    uint32
	monitorID uint32
	publish   driver.Publisher
}

// Driver is one OPC UA client session.
type Driver struct {
	cfg Config

	mu       sync.Mutex
	client   *opcua.Client
	cancel   context.CancelFunc
	target   driver.Target
	endpoint string

	sub        *opcua.Subscription
	subDone    chan struct{}
	nextHandle uint32
	items      map[string]*monitored
	handles    map[uint32]*monitored
}

// New creates a disconnected driver.
func New(cfg Config) *Driver {
	return &Driver{
		cfg:     cfg.withDefaults(),
		items:   make(map[string]*monitored),
		handles: make(map[uint32]*monitored),
	}
}

// EndpointURL builds the endpoint URL of target. A server id that already
// is a URL is used as is; otherwise it becomes the path below host:port.
func EndpointURL(target driver.Target, defaultPort int) (string, error) {
	if ep := strings.TrimSpace(target.Settings[SettingEndpoint]); ep != "" {
		return ep, nil
	}
	if strings.Contains(target.ServerID, "://") {
		return target.ServerID, nil
	}
	host := strings.TrimSpace(target.Host)
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidEndpoint)
	}
	port := defaultPort
	if v := target.Settings[SettingPort]; v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return "", fmt.Errorf("%w: port %q", ErrInvalidEndpoint, v)
		}
		port = p
	}
	url := "opc.tcp://" + net.JoinHostPort(host, strconv.Itoa(port))
	if path := strings.Trim(target.ServerID, "/"); path != "" {
		url += "/" + path
	}
	return url, nil
}

// UserName returns the OPC UA user name for creds.
func UserName(creds driver.Credentials) string {
	if creds.User == "" || creds.Domain == "" {
		return creds.User
	}
	return creds.Domain + `\` + creds.User
}

func (d *Driver) options(target driver.Target) []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.SecurityPolicy(ua.SecurityPolicyURINone),
		opcua.RequestTimeout(d.cfg.RequestTimeout),
		opcua.DialTimeout(d.cfg.RequestTimeout),
		// Reconnects are driven by the supervisor's ping cycle.
		opcua.AutoReconnect(false),
	}
	if user := UserName(target.Credentials); user != "" {
		opts = append(opts, opcua.AuthUsername(user, target.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

// Connect implements driver.Driver. The session outlives ctx: only the
// connect attempt is bounded by it.
func (d *Driver) Connect(ctx context.Context, target driver.Target) error {
	url, err := EndpointURL(target, d.cfg.Port)
	if err != nil {
		return err
	}
	c, err := opcua.NewClient(url, d.options(target)...)
	if err != nil {
		return fmt.Errorf("opcua: client for %s: %w", url, err)
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	errCh := make(chan error, 1)
	go func() { errCh <- c.Connect(sessCtx) }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		cancel()
		go func() {
			<-errCh
			_ = c.Close(context.Background())
		}()
		return ctx.Err()
	}
	if err != nil {
		cancel()
		_ = c.Close(context.Background())
		return fmt.Errorf("opcua: connect %s: %w", url, err)
	}

	d.mu.Lock()
	old, oldCancel, oldSub, oldDone := d.client, d.cancel, d.sub, d.subDone
	d.client, d.cancel = c, cancel
	d.target, d.endpoint = target, url
	d.resetSubscriptionLocked()
	d.mu.Unlock()

	closeSession(old, oldCancel, oldSub, oldDone)
	logging.Debug().Str("endpoint", url).Msg("OPC UA session established")
	return nil
}

// Disconnect implements driver.Driver.
func (d *Driver) Disconnect(_ context.Context) error {
	d.mu.Lock()
	c, cancel, sub, done := d.client, d.cancel, d.sub, d.subDone
	d.client, d.cancel = nil, nil
	d.resetSubscriptionLocked()
	d.mu.Unlock()

	closeSession(c, cancel, sub, done)
	return nil
}

func (d *Driver) resetSubscriptionLocked() {
	d.sub, d.subDone = nil, nil
	d.items = make(map[string]*monitored)
	d.handles = make(map[uint32]*monitored)
}

func closeSession(c *opcua.Client, cancel context.CancelFunc, sub *opcua.Subscription, done chan struct{}) {
	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if done != nil {
		close(done)
	}
	if sub != nil {
		if err := sub.Cancel(ctx); err != nil {
			logging.Debug().Err(err).Msg("OPC UA subscription cancel failed")
		}
	}
	if c != nil {
		if err := c.Close(ctx); err != nil {
			logging.Debug().Err(err).Msg("OPC UA session close failed")
		}
	}
	if cancel != nil {
		cancel()
	}
}

// IsConnected implements driver.Driver.
func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	c := d.client
	d.mu.Unlock()
	return c != nil && c.State() == opcua.Connected
}

func (d *Driver) session() (*opcua.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil || d.client.State() != opcua.Connected {
		return nil, driver.ErrNotConnected
	}
	return d.client, nil
}

// OnConnected implements driver.Driver by browsing the address space.
func (d *Driver) OnConnected(ctx context.Context, sink driver.ItemSink) error {
	c, err := d.session()
	if err != nil {
		return err
	}
	d.mu.Lock()
	settings := d.target.Settings
	d.mu.Unlock()

	root := ua.NewNumericNodeID(0, id.ObjectsFolder)
	if v := settings[SettingRoot]; v != "" {
		if root, err = ua.ParseNodeID(v); err != nil {
			return fmt.Errorf("opcua: browse root %q: %w", v, err)
		}
	}
	depth := d.cfg.BrowseDepth
	if v := settings[SettingDepth]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			depth = n
		}
	}

	w := &walker{
		src:      clientSource{c: c},
		sink:     sink,
		maxDepth: depth,
		maxItems: d.cfg.MaxItems,
	}
	return w.walk(ctx, root)
}

// Subscribe implements driver.Driver.
func (d *Driver) Subscribe(ctx context.Context, item driver.Item, publish driver.Publisher) error {
	nid, err := ua.ParseNodeID(item.ID)
	if err != nil {
		return fmt.Errorf("%w: %s", driver.ErrUnknownItem, item.ID)
	}
	sub, err := d.subscription(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if m, ok := d.items[item.ID]; ok {
		m.publish = publish
		d.mu.Unlock()
		return nil
	}
	d.nextHandle++
	handle := d.nextHandle
	d.mu.Unlock()

	req := opcua.NewMonitoredItemCreateRequestWithDefaults(nid, ua.AttributeIDValue, handle)
	res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		return fmt.Errorf("opcua: monitor %s: %w", item.ID, err)
	}
	if len(res.Results) != 1 {
		return fmt.Errorf("opcua: monitor %s: %d results", item.ID, len(res.Results))
	}
	if sc := res.Results[0].StatusCode; sc != ua.StatusOK {
		return fmt.Errorf("opcua: monitor %s: %w", item.ID, sc)
	}

	m := &monitored{itemID: item.ID, handle: handle, monitorID: res.Results[0].MonitoredItemID, publish: publish}
	d.mu.Lock()
	d.items[item.ID] = m
	d.handles[handle] = m
	d.mu.Unlock()
	return nil
}

// subscription returns the session subscription, creating it on first use.
func (d *Driver) subscription(ctx context.Context) (*opcua.Subscription, error) {
	c, err := d.session()
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.sub != nil {
		sub := d.sub
		d.mu.Unlock()
		return sub, nil
	}
	interval := d.cfg.PublishInterval
	if v := d.target.Settings[SettingInterval]; v != "" {
		if iv, err := time.ParseDuration(v); err == nil && iv > 0 {
			interval = iv
		}
	}
	d.mu.Unlock()

	ch := make(chan *opcua.PublishNotificationData, 64)
	sub, err := c.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: interval}, ch)
	if err != nil {
		return nil, fmt.Errorf("opcua: subscribe: %w", err)
	}

	d.mu.Lock()
	if d.client != c || d.sub != nil {
		// Lost a race with Disconnect or with another Subscribe.
		existing := d.sub
		d.mu.Unlock()
		_ = sub.Cancel(context.WithoutCancel(ctx))
		if existing == nil {
			return nil, driver.ErrNotConnected
		}
		return existing, nil
	}
	done := make(chan struct{})
	d.sub, d.subDone = sub, done
	d.mu.Unlock()

	go d.dispatch(ch, done)
	return sub, nil
}

func (d *Driver) dispatch(ch <-chan *opcua.PublishNotificationData, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case n := <-ch:
			d.handleNotification(n)
		}
	}
}

// handleNotification delivers the data changes of n to their publishers.
func (d *Driver) handleNotification(n *opcua.PublishNotificationData) {
	if n == nil {
		return
	}
	if n.Error != nil {
		logging.Debug().Err(n.Error).Str("endpoint", d.Endpoint()).Msg("OPC UA publish error")
		return
	}
	dc, ok := n.Value.(*ua.DataChangeNotification)
	if !ok {
		return
	}
	for _, mi := range dc.MonitoredItems {
		if mi == nil || mi.Value == nil {
			continue
		}
		d.mu.Lock()
		m := d.handles[mi.ClientHandle]
		var publish driver.Publisher
		if m != nil {
			publish = m.publish
		}
		d.mu.Unlock()
		if publish == nil {
			continue
		}
		if mi.Value.Status != ua.StatusOK || mi.Value.Value == nil {
			continue
		}
		publish(normalizeValue(mi.Value.Value.Value()))
	}
}

// Unsubscribe implements driver.Driver.
func (d *Driver) Unsubscribe(ctx context.Context, item driver.Item) error {
	d.mu.Lock()
	m, ok := d.items[item.ID]
	if ok {
		delete(d.items, item.ID)
		delete(d.handles, m.handle)
	}
	sub := d.sub
	d.mu.Unlock()

	if !ok || sub == nil {
		return nil
	}
	if _, err := sub.Unmonitor(ctx, m.monitorID); err != nil {
		return fmt.Errorf("opcua: unmonitor %s: %w", item.ID, err)
	}
	return nil
}

// Write implements driver.Driver. value is coerced to the type of the
// variable's current value.
func (d *Driver) Write(ctx context.Context, item driver.Item, value any) error {
	if !item.Access.Writable() {
		return driver.ErrReadOnly
	}
	c, err := d.session()
	if err != nil {
		return err
	}
	nid, err := ua.ParseNodeID(item.ID)
	if err != nil {
		return fmt.Errorf("%w: %s", driver.ErrUnknownItem, item.ID)
	}

	rres, err := c.Read(ctx, &ua.ReadRequest{
		NodesToRead:        []*ua.ReadValueID{{NodeID: nid, AttributeID: ua.AttributeIDValue}},
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		return fmt.Errorf("opcua: read %s: %w", item.ID, err)
	}
	var current any
	if len(rres.Results) == 1 && rres.Results[0].Value != nil {
		current = rres.Results[0].Value.Value()
	}
	coerced, err := Coerce(value, current)
	if err != nil {
		return fmt.Errorf("opcua: write %s: %w", item.ID, err)
	}
	v, err := ua.NewVariant(coerced)
	if err != nil {
		return fmt.Errorf("opcua: write %s: %w", item.ID, err)
	}

	wres, err := c.Write(ctx, &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      nid,
			AttributeID: ua.AttributeIDValue,
			Value:       &ua.DataValue{EncodingMask: ua.DataValueValue, Value: v},
		}},
	})
	if err != nil {
		return fmt.Errorf("opcua: write %s: %w", item.ID, err)
	}
	if len(wres.Results) == 1 && wres.Results[0] != ua.StatusOK {
		return fmt.Errorf("opcua: write %s: %w", item.ID, wres.Results[0])
	}
	return nil
}

// EditParams implements driver.Driver.
func (d *Driver) EditParams(settings map[string]string) []nodetree.Param {
	port := settings[SettingPort]
	if port == "" {
		port = strconv.Itoa(d.cfg.Port)
	}
	return []nodetree.Param{
		nodetree.StringParam(SettingEndpoint, settings[SettingEndpoint]),
		nodetree.StringParam(SettingPort, port),
		nodetree.StringParam(SettingRoot, settings[SettingRoot]),
		nodetree.StringParam(SettingDepth, settings[SettingDepth]),
		nodetree.StringParam(SettingInterval, settings[SettingInterval]),
	}
}

// Endpoint returns the URL of the current session, if any.
func (d *Driver) Endpoint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoint
}
