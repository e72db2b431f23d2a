// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package opcua

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/tomtom215/opclink/internal/driver"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name    string
		target  driver.Target
		want    string
		wantErr bool
	}{
		{
			name:   "path below host",
			target: driver.Target{Credentials: driver.Credentials{Host: "plc1"}, ServerID: "/line2/"},
			want:   "opc.tcp://plc1:4840/line2",
		},
		{
			name:   "no path",
			target: driver.Target{Credentials: driver.Credentials{Host: "plc1"}},
			want:   "opc.tcp://plc1:4840",
		},
		{
			name:   "server id is a url",
			target: driver.Target{Credentials: driver.Credentials{Host: "ignored"}, ServerID: "opc.tcp://10.0.0.7:48010"},
			want:   "opc.tcp://10.0.0.7:48010",
		},
		{
			name: "endpoint setting wins",
			target: driver.Target{
				ServerID: "opc.tcp://a:1",
				Settings: map[string]string{SettingEndpoint: "opc.tcp://b:2/x"},
			},
			want: "opc.tcp://b:2/x",
		},
		{
			name: "port setting",
			target: driver.Target{
				Credentials: driver.Credentials{Host: "::1"},
				Settings:    map[string]string{SettingPort: "53530"},
			},
			want: "opc.tcp://[::1]:53530",
		},
		{
			name:    "bad port",
			target:  driver.Target{Credentials: driver.Credentials{Host: "plc1"}, Settings: map[string]string{SettingPort: "99999"}},
			wantErr: true,
		},
		{
			name:    "empty host",
			target:  driver.Target{ServerID: "line2"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EndpointURL(tt.target, 4840)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEndpoint) {
					t.Fatalf("expected ErrInvalidEndpoint, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EndpointURL failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserName(t *testing.T) {
	tests := []struct {
		creds driver.Credentials
		want  string
	}{
		{driver.Credentials{}, ""},
		{driver.Credentials{User: "opc"}, "opc"},
		{driver.Credentials{Domain: "CORP", User: "opc"}, `CORP\opc`},
		{driver.Credentials{Domain: "CORP"}, ""},
	}
	for _, tt := range tests {
		if got := UserName(tt.creds); got != tt.want {
			t.Errorf("UserName(%+v) = %q, want %q", tt.creds, got, tt.want)
		}
	}
}

func TestAccessRights(t *testing.T) {
	tests := []struct {
		level byte
		want  driver.AccessRights
	}{
		{0x00, driver.ReadOnly},
		{0x01, driver.ReadOnly},
		{0x02, driver.WriteOnly},
		{0x03, driver.ReadWrite},
		{0x07, driver.ReadWrite},
	}
	for _, tt := range tests {
		if got := accessRights(tt.level); got != tt.want {
			t.Errorf("accessRights(%#x) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestEntryFromAttributes(t *testing.T) {
	nid := ua.NewStringNodeID(2, "Line1.Temp")
	attrs := []*ua.DataValue{
		{Value: ua.MustVariant(int32(ua.NodeClassVariable))},
		{Value: ua.MustVariant(&ua.QualifiedName{NamespaceIndex: 2, Name: "Temp"})},
		{Value: ua.MustVariant(uint8(3))},
	}
	e := entryFromAttributes(nid, attrs)
	if e.Class != ua.NodeClassVariable || e.Name != "Temp" || e.Access != 3 {
		t.Errorf("unexpected entry %+v", e)
	}

	t.Run("missing attributes fall back to the node id", func(t *testing.T) {
		e := entryFromAttributes(nid, []*ua.DataValue{{Value: ua.MustVariant(int32(ua.NodeClassObject))}, nil})
		if e.Class != ua.NodeClassObject || e.Name != nid.String() || e.Access != 0 {
			t.Errorf("unexpected entry %+v", e)
		}
	})
}

// fakeSource is an address space keyed by parent node id.
type fakeSource map[string][]browseEntry

func (f fakeSource) Browse(_ context.Context, parent *ua.NodeID) ([]browseEntry, error) {
	return f[parent.String()], nil
}

type sinkItem struct {
	folders []string
	id      string
	access  driver.AccessRights
}

type recordingSink struct {
	items []sinkItem
	fail  string
}

func (r *recordingSink) AddItem(folders []string, id string, access driver.AccessRights) error {
	if id == r.fail {
		return errors.New("rejected")
	}
	r.items = append(r.items, sinkItem{folders: folders, id: id, access: access})
	return nil
}

func object(ns uint16, name string) browseEntry {
	return browseEntry{ID: ua.NewStringNodeID(ns, name), Name: name, Class: ua.NodeClassObject}
}

func variable(ns uint16, id, name string, access byte) browseEntry {
	return browseEntry{ID: ua.NewStringNodeID(ns, id), Name: name, Class: ua.NodeClassVariable, Access: access}
}

func testSpace() (*ua.NodeID, fakeSource) {
	root := ua.NewNumericNodeID(0, 85)
	line := object(2, "Line1")
	cell := object(2, "Cell")
	return root, fakeSource{
		root.String(): {
			object(0, "Server"),
			line,
			variable(2, "Top", "Top", 0x01),
		},
		line.ID.String(): {
			variable(2, "Line1.Temp", "Temp", 0x01),
			variable(2, "Line1.SP", "SP", 0x03),
			cell,
			line, // reference cycle
		},
		cell.ID.String(): {
			variable(2, "Line1.Cell.Cmd", "Cmd", 0x02),
		},
		ua.NewStringNodeID(0, "Server").String(): {
			variable(0, "ServerStatus", "ServerStatus", 0x01),
		},
	}
}

func TestWalker(t *testing.T) {
	root, src := testSpace()

	t.Run("full depth", func(t *testing.T) {
		sink := &recordingSink{}
		w := &walker{src: src, sink: sink, maxDepth: 4, maxItems: 100}
		if err := w.walk(context.Background(), root); err != nil {
			t.Fatalf("walk failed: %v", err)
		}
		got := map[string]sinkItem{}
		for _, it := range sink.items {
			got[it.id] = it
		}
		if len(got) != 4 {
			t.Fatalf("expected 4 items, got %+v", sink.items)
		}
		if _, ok := got["ns=0;s=ServerStatus"]; ok {
			t.Error("namespace 0 objects must not be browsed")
		}
		cmd := got["ns=2;s=Line1.Cell.Cmd"]
		if !reflect.DeepEqual(cmd.folders, []string{"Line1", "Cell"}) || cmd.access != driver.WriteOnly {
			t.Errorf("unexpected Cmd item %+v", cmd)
		}
		if sp := got["ns=2;s=Line1.SP"]; sp.access != driver.ReadWrite || !reflect.DeepEqual(sp.folders, []string{"Line1"}) {
			t.Errorf("unexpected SP item %+v", sp)
		}
		if top := got["ns=2;s=Top"]; len(top.folders) != 0 {
			t.Errorf("root variable should have no folders, got %v", top.folders)
		}
	})

	t.Run("depth limit", func(t *testing.T) {
		sink := &recordingSink{}
		w := &walker{src: src, sink: sink, maxDepth: 2, maxItems: 100}
		if err := w.walk(context.Background(), root); err != nil {
			t.Fatalf("walk failed: %v", err)
		}
		for _, it := range sink.items {
			if it.id == "ns=2;s=Line1.Cell.Cmd" {
				t.Error("Cell is beyond the depth limit")
			}
		}
		if len(sink.items) != 3 {
			t.Errorf("expected 3 items, got %d", len(sink.items))
		}
	})

	t.Run("item limit", func(t *testing.T) {
		sink := &recordingSink{}
		w := &walker{src: src, sink: sink, maxDepth: 4, maxItems: 2}
		if err := w.walk(context.Background(), root); err != nil {
			t.Fatalf("walk failed: %v", err)
		}
		if len(sink.items) != 2 {
			t.Errorf("expected 2 items, got %d", len(sink.items))
		}
	})

	t.Run("sink errors are joined", func(t *testing.T) {
		sink := &recordingSink{fail: "ns=2;s=Line1.SP"}
		w := &walker{src: src, sink: sink, maxDepth: 4, maxItems: 100}
		if err := w.walk(context.Background(), root); err == nil {
			t.Error("expected the sink error to be reported")
		}
		if len(sink.items) != 3 {
			t.Errorf("other items must still be announced, got %d", len(sink.items))
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w := &walker{src: src, sink: &recordingSink{}, maxDepth: 4, maxItems: 100}
		if err := w.walk(ctx, root); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		like    any
		want    any
		wantErr bool
	}{
		{"no current value", 1.5, nil, 1.5, false},
		{"json number to int16", float64(42), int16(0), int16(42), false},
		{"string to int32", "-7", int32(0), int32(-7), false},
		{"fraction to int", 1.5, int32(0), nil, true},
		{"int8 overflow", float64(300), int8(0), nil, true},
		{"negative to uint", float64(-1), uint16(0), nil, true},
		{"string to uint32", "4000000000", uint32(0), uint32(4000000000), false},
		{"float64 to float32", 2.5, float32(0), float32(2.5), false},
		{"string to float64", " 3.25 ", float64(0), 3.25, false},
		{"not a number", "abc", float64(0), nil, true},
		{"string to bool", "true", false, true, false},
		{"number to bool", float64(0), true, false, false},
		{"bad bool", "maybe", false, nil, true},
		{"number to string", float64(12), "", "12", false},
		{"unknown type passes through", "x", []byte{1}, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.like)
			if tt.wantErr {
				if !errors.Is(err, ErrCoerce) {
					t.Fatalf("expected ErrCoerce, got %v (%v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestServerIDs(t *testing.T) {
	apps := []*ua.ApplicationDescription{
		{ApplicationType: ua.ApplicationTypeServer, DiscoveryURLs: []string{"opc.tcp://plc1:4840/b"}},
		{ApplicationType: ua.ApplicationTypeClientAndServer, DiscoveryURLs: []string{"", "opc.tcp://plc1:4840/a"}},
		{ApplicationType: ua.ApplicationTypeDiscoveryServer, DiscoveryURLs: []string{"opc.tcp://plc1:4840"}},
		{ApplicationType: ua.ApplicationTypeClient, DiscoveryURLs: []string{"opc.tcp://hmi:4840"}},
		{ApplicationType: ua.ApplicationTypeServer, ApplicationURI: "urn:no-url"},
		{ApplicationType: ua.ApplicationTypeServer, DiscoveryURLs: []string{"opc.tcp://plc1:4840/b"}},
		nil,
	}
	want := []string{"opc.tcp://plc1:4840/a", "opc.tcp://plc1:4840/b"}
	if got := ServerIDs(apps); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscovererRequiresHost(t *testing.T) {
	if _, err := (Discoverer{}).ListServers(context.Background(), driver.Credentials{}); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("expected ErrInvalidEndpoint, got %v", err)
	}
}

func TestHandleNotification(t *testing.T) {
	d := New(Config{})
	var got []any
	m := &monitored{itemID: "ns=2;s=Temp", handle: 7, publish: func(v any) { got = append(got, v) }}
	d.items[m.itemID] = m
	d.handles[m.handle] = m

	d.handleNotification(&opcua.PublishNotificationData{
		Value: &ua.DataChangeNotification{
			MonitoredItems: []*ua.MonitoredItemNotification{
				{ClientHandle: 7, Value: &ua.DataValue{Value: ua.MustVariant(int32(21)), Status: ua.StatusOK}},
				{ClientHandle: 8, Value: &ua.DataValue{Value: ua.MustVariant(int32(99))}},
				{ClientHandle: 7, Value: &ua.DataValue{Value: ua.MustVariant(int32(0)), Status: ua.StatusBadNodeIDUnknown}},
				{ClientHandle: 7, Value: &ua.DataValue{Value: ua.MustVariant(&ua.LocalizedText{Text: "warm"})}},
				nil,
			},
		},
	})
	d.handleNotification(&opcua.PublishNotificationData{Error: errors.New("publish failed")})
	d.handleNotification(&opcua.PublishNotificationData{Value: &ua.EventNotificationList{}})
	d.handleNotification(nil)

	want := []any{int32(21), "warm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("published %#v, want %#v", got, want)
	}
}

func TestDisconnectedDriver(t *testing.T) {
	d := New(Config{})
	ctx := context.Background()
	item := driver.Item{ID: "ns=2;s=SP", Access: driver.ReadWrite}

	if d.IsConnected() {
		t.Error("new driver must not be connected")
	}
	if err := d.Write(ctx, item, 1.0); !errors.Is(err, driver.ErrNotConnected) {
		t.Errorf("Write: expected ErrNotConnected, got %v", err)
	}
	if err := d.Write(ctx, driver.Item{ID: item.ID, Access: driver.ReadOnly}, 1.0); !errors.Is(err, driver.ErrReadOnly) {
		t.Errorf("Write read-only: expected ErrReadOnly, got %v", err)
	}
	if err := d.Subscribe(ctx, item, func(any) {}); !errors.Is(err, driver.ErrNotConnected) {
		t.Errorf("Subscribe: expected ErrNotConnected, got %v", err)
	}
	if err := d.Subscribe(ctx, driver.Item{ID: "not a node id;;"}, func(any) {}); !errors.Is(err, driver.ErrUnknownItem) {
		t.Errorf("Subscribe bad id: expected ErrUnknownItem, got %v", err)
	}
	if err := d.OnConnected(ctx, &recordingSink{}); !errors.Is(err, driver.ErrNotConnected) {
		t.Errorf("OnConnected: expected ErrNotConnected, got %v", err)
	}
	if err := d.Unsubscribe(ctx, item); err != nil {
		t.Errorf("Unsubscribe on idle driver: %v", err)
	}
	if err := d.Disconnect(ctx); err != nil {
		t.Errorf("Disconnect on idle driver: %v", err)
	}
	if err := d.Connect(ctx, driver.Target{}); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("Connect without host: expected ErrInvalidEndpoint, got %v", err)
	}
}

func TestEditParams(t *testing.T) {
	d := New(Config{Port: 4841})
	params := d.EditParams(map[string]string{SettingRoot: "ns=2;s=Line1"})
	got := map[string]string{}
	for _, p := range params {
		got[p.Name] = p.Default
	}
	if got[SettingPort] != "4841" || got[SettingRoot] != "ns=2;s=Line1" {
		t.Errorf("unexpected defaults %v", got)
	}
	for _, key := range []string{SettingEndpoint, SettingDepth, SettingInterval} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing %s parameter", key)
		}
	}
}

func TestRegistered(t *testing.T) {
	f, err := driver.Lookup(Name)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if _, ok := f().(*Driver); !ok {
		t.Error("factory does not build an opcua driver")
	}
}
