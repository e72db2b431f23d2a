// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package sim

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/tomtom215/opclink/internal/driver"
)

type recordingSink struct {
	ids []string
}

func (r *recordingSink) AddItem(folders []string, id string, _ driver.AccessRights) error {
	r.ids = append(r.ids, id)
	return nil
}

func TestParseItems(t *testing.T) {
	items, err := ParseItems("Line1/P1:read-write, P2 ,A/B/C:writable")
	if err != nil {
		t.Fatalf("ParseItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ID != "Line1.P1" || items[0].Access != driver.ReadWrite || len(items[0].Folders) != 1 {
		t.Errorf("unexpected first item %+v", items[0])
	}
	if items[1].ID != "P2" || items[1].Access != driver.ReadOnly || len(items[1].Folders) != 0 {
		t.Errorf("unexpected second item %+v", items[1])
	}
	if items[2].Access != driver.WriteOnly || len(items[2].Folders) != 2 {
		t.Errorf("unexpected third item %+v", items[2])
	}

	if _, err := ParseItems("Folder/:ro"); err == nil {
		t.Error("expected error for empty item name")
	}
}

func TestConnectAndAnnounce(t *testing.T) {
	ctx := context.Background()
	d := New()
	target := driver.Target{ServerID: "Vendor.OPC.Simulation", Settings: map[string]string{SettingItems: "P1,P2"}}
	if err := d.Connect(ctx, target); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !d.IsConnected() {
		t.Fatal("expected connected")
	}

	sink := &recordingSink{}
	if err := d.OnConnected(ctx, sink); err != nil {
		t.Fatalf("OnConnected failed: %v", err)
	}
	sort.Strings(sink.ids)
	if len(sink.ids) != 2 || sink.ids[0] != "P1" || sink.ids[1] != "P2" {
		t.Errorf("announced %v", sink.ids)
	}

	d.Drop()
	if d.IsConnected() {
		t.Error("expected disconnected after drop")
	}
}

func TestDefaultItems(t *testing.T) {
	tests := []struct {
		name     string
		driver   *Driver
		settings map[string]string
		want     int
	}{
		{"built-in list", New(), nil, 3},
		{"driver default", NewWithItems("A/X,A/Y"), nil, 2},
		{"setting wins", NewWithItems("A/X,A/Y"), map[string]string{SettingItems: "Z"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if err := tt.driver.Connect(ctx, driver.Target{ServerID: "s", Settings: tt.settings}); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			sink := &recordingSink{}
			if err := tt.driver.OnConnected(ctx, sink); err != nil {
				t.Fatalf("OnConnected failed: %v", err)
			}
			if len(sink.ids) != tt.want {
				t.Errorf("announced %v, want %d items", sink.ids, tt.want)
			}
		})
	}
}

func TestConnectFailure(t *testing.T) {
	f := NewFleet()
	f.SetFailConnect(true)
	d := f.Factory()()

	err := d.Connect(context.Background(), driver.Target{ServerID: "x"})
	if !errors.Is(err, ErrConnectRefused) {
		t.Errorf("expected ErrConnectRefused, got %v", err)
	}
	if d.IsConnected() {
		t.Error("failed connect must not report connected")
	}
	if f.Last().Connects() != 1 {
		t.Errorf("connects = %d", f.Last().Connects())
	}

	f.SetFailConnect(false)
	if err := d.Connect(context.Background(), driver.Target{ServerID: "x"}); err != nil {
		t.Errorf("Connect after recovery failed: %v", err)
	}
}

func TestSubscribeAndWrite(t *testing.T) {
	ctx := context.Background()
	d := New()
	_ = d.Connect(ctx, driver.Target{ServerID: "x", Settings: map[string]string{SettingItems: "P1:read-write"}})

	item := driver.Item{ID: "P1", Access: driver.ReadWrite}
	got := make(chan any, 4)
	if err := d.Subscribe(ctx, item, func(v any) { got <- v }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !d.Subscribed("P1") {
		t.Error("expected subscription")
	}

	if err := d.Write(ctx, item, 12.5); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	select {
	case v := <-got:
		if v != 12.5 {
			t.Errorf("published %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no value published")
	}

	readOnly := driver.Item{ID: "P1", Access: driver.ReadOnly}
	if err := d.Write(ctx, readOnly, 1); !errors.Is(err, driver.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}

	_ = d.Unsubscribe(ctx, item)
	if d.Subscribed("P1") {
		t.Error("expected no subscription")
	}

	_ = d.Disconnect(ctx)
	if err := d.Subscribe(ctx, item, nil); !errors.Is(err, driver.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestGenerator(t *testing.T) {
	ctx := context.Background()
	d := New()
	_ = d.Connect(ctx, driver.Target{ServerID: "x", Settings: map[string]string{
		SettingItems:    "Random/Real8",
		SettingInterval: "5ms",
	}})

	got := make(chan any, 16)
	_ = d.Subscribe(ctx, driver.Item{ID: "Random.Real8"}, func(v any) {
		select {
		case got <- v:
		default:
		}
	})
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("generator produced no value")
	}
	_ = d.Disconnect(ctx)
}
