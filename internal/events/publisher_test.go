// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/opclink/internal/nodetree"
)

func startPublisher(t *testing.T, tree *nodetree.Tree) *Publisher {
	t.Helper()
	p := NewPublisher(Config{
		Embedded:       true,
		EmbeddedConfig: ServerConfig{Host: "127.0.0.1", Port: -1},
		SubjectPrefix:  "test.values",
	}, tree)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func TestSubject(t *testing.T) {
	tests := []struct{ path, want string }{
		{"/Plant/Sim1/Random/Int4", "opclink.values.Plant.Sim1.Random.Int4"},
		{"/Line 2/Bucket.Setpoint", "opclink.values.Line_2.Bucket_Setpoint"},
		{"/a/*/>", "opclink.values.a._._"},
		{"/", "opclink.values"},
	}
	for _, tt := range tests {
		if got := Subject("opclink.values", tt.path); got != tt.want {
			t.Errorf("Subject(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPublisherPublishesValueChanges(t *testing.T) {
	tree := nodetree.New()
	plant, _ := tree.CreateChild(tree.Root(), "Plant")
	item, _ := tree.CreateChild(plant, "Int4")

	p := startPublisher(t, tree)

	nc, err := nats.Connect(p.ClientURL())
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer nc.Close()
	sub, err := nc.SubscribeSync("test.values.Plant.>")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	tree.SetValue(item, 42)

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("no message: %v", err)
	}
	if msg.Subject != "test.values.Plant.Int4" {
		t.Errorf("subject = %q", msg.Subject)
	}
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if ev.Path != "/Plant/Int4" || ev.Value != float64(42) {
		t.Errorf("event = %+v", ev)
	}
	if ev.ID == "" || msg.Header.Get(nats.MsgIdHdr) != ev.ID {
		t.Errorf("message id header %q does not match event id %q", msg.Header.Get(nats.MsgIdHdr), ev.ID)
	}

	wm, err := (&wmNats.NATSMarshaler{}).Unmarshal(msg)
	if err != nil {
		t.Fatalf("not a watermill message: %v", err)
	}
	if wm.UUID != ev.ID {
		t.Errorf("watermill uuid = %q, want %q", wm.UUID, ev.ID)
	}
	if got := wm.Metadata.Get("path"); got != "/Plant/Int4" {
		t.Errorf("path metadata = %q", got)
	}
}

func TestPublisherLifecycle(t *testing.T) {
	tree := nodetree.New()
	n, _ := tree.CreateChild(tree.Root(), "x")

	p := NewPublisher(Config{}, tree)
	tree.SetValue(n, 1) // before Start: ignored
	p.Shutdown(context.Background())
	if p.ClientURL() != "" {
		t.Error("stopped publisher reports a URL")
	}

	p = startPublisher(t, tree)
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	p.Shutdown(context.Background())
	p.Shutdown(context.Background())
	tree.SetValue(n, 2) // after Shutdown: ignored
}

func TestEmbeddedServer(t *testing.T) {
	s, err := NewEmbeddedServer(ServerConfig{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("NewEmbeddedServer failed: %v", err)
	}
	if !s.IsRunning() || s.ClientURL() == "" {
		t.Error("server should be running with a client URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("server still running")
	}
}
