// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

// Package events publishes node value changes to NATS.
//
// Every value update in the tree becomes one message on
// <prefix>.<path tokens>, for example
//
//	/Plant/Sim1/Random/Int4  ->  opclink.values.Plant.Sim1.Random.Int4
//
// Consumers can use NATS wildcards to follow a whole endpoint
// (opclink.values.Plant.>) or one item across servers. Messages go out
// through a Watermill NATS publisher on core NATS. Each one carries its
// UUID as the Nats-Msg-Id header so a JetStream stream bound to the
// subjects can deduplicate redeliveries.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/metrics"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("publisher already started")

// Config configures a Publisher.
type Config struct {
	// URL of an external NATS server. Ignored when Embedded is set.
	URL string

	// Embedded starts an in-process server with EmbeddedConfig.
	Embedded       bool
	EmbeddedConfig ServerConfig

	// SubjectPrefix is prepended to every subject. Defaults to
	// "opclink.values".
	SubjectPrefix string

	// ReconnectWait between reconnect attempts. Defaults to 1s.
	ReconnectWait time.Duration

	// ReconnectBuffer bounds the bytes buffered while disconnected.
	// Defaults to 8MB.
	ReconnectBuffer int
}

// Event is the JSON body of a value message.
type Event struct {
	ID    string    `json:"id"`
	Path  string    `json:"path"`
	Value any       `json:"value"`
	Time  time.Time `json:"time"`
}

// Publisher forwards tree value changes to NATS. It implements
// services.EventsRunner.
type Publisher struct {
	cfg    Config
	logger watermill.LoggerAdapter

	mu        sync.RWMutex
	publisher message.Publisher
	embedded  *EmbeddedServer
	url       string
}

// NewPublisher creates a Publisher and registers it as a value listener on
// tree. Updates are ignored until Start.
func NewPublisher(cfg Config, tree *nodetree.Tree) *Publisher {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "opclink.values"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}
	if cfg.ReconnectBuffer <= 0 {
		cfg.ReconnectBuffer = 8 * 1024 * 1024
	}
	p := &Publisher{
		cfg:    cfg,
		logger: watermill.NewSlogLogger(logging.NewSlogLogger()),
	}
	if tree != nil {
		tree.OnValueChange(p.forward)
	}
	return p
}

// Start connects to NATS, starting the embedded server first if configured,
// and begins publishing.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publisher != nil {
		return ErrAlreadyStarted
	}

	url := p.cfg.URL
	var embedded *EmbeddedServer
	if p.cfg.Embedded {
		var err error
		embedded, err = NewEmbeddedServer(p.cfg.EmbeddedConfig)
		if err != nil {
			return err
		}
		url = embedded.ClientURL()
	}

	logger := p.logger
	natsOpts := []nats.Option{
		nats.Name("opclink"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(p.cfg.ReconnectWait),
		nats.ReconnectBufSize(p.cfg.ReconnectBuffer),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(ctx)
		}
		return fmt.Errorf("create watermill publisher: %w", err)
	}

	p.publisher = pub
	p.embedded = embedded
	p.url = url

	logging.Info().
		Str("url", url).
		Bool("embedded", embedded != nil).
		Str("subject_prefix", p.cfg.SubjectPrefix).
		Msg("Value event publisher started")
	return nil
}

// Shutdown closes the publisher, which flushes the connection, and stops
// the embedded server. It is safe to call without Start.
func (p *Publisher) Shutdown(ctx context.Context) {
	p.mu.Lock()
	pub, embedded := p.publisher, p.embedded
	p.publisher, p.embedded, p.url = nil, nil, ""
	p.mu.Unlock()
	if pub == nil {
		return
	}

	if err := pub.Close(); err != nil {
		logging.Warn().Err(err).Msg("Closing NATS publisher failed")
	}
	if embedded != nil {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
		}
		if err := embedded.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Embedded NATS server shutdown failed")
		}
	}
	logging.Info().Msg("Value event publisher stopped")
}

// ClientURL returns the URL the publisher connects to, or "" when stopped.
func (p *Publisher) ClientURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// Subject returns the subject used for a node path.
func (p *Publisher) Subject(path string) string {
	return Subject(p.cfg.SubjectPrefix, path)
}

// forward is the tree value listener. Core NATS publishes are buffered by
// the client, so publishing inline does not block the caller on the network.
func (p *Publisher) forward(u nodetree.ValueUpdate) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.publisher == nil {
		return
	}
	err := p.publish(u)
	metrics.RecordEventPublish(err)
	if err != nil {
		logging.Debug().Err(err).Str("path", u.Path).Msg("Value event publish failed")
	}
}

func (p *Publisher) publish(u nodetree.ValueUpdate) error {
	id := uuid.NewString()
	body, err := json.Marshal(Event{ID: id, Path: u.Path, Value: u.Value, Time: u.Time.UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(id, body)
	msg.Metadata.Set(nats.MsgIdHdr, id)
	msg.Metadata.Set("path", u.Path)
	return p.publisher.Publish(p.Subject(u.Path), msg)
}

// Subject maps a node path to a NATS subject below prefix. Characters that
// are not valid inside a subject token are replaced with '_'.
func Subject(prefix, path string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, name := range strings.Split(path, nodetree.PathSeparator) {
		if name == "" {
			continue
		}
		b.WriteByte('.')
		b.WriteString(subjectToken(name))
	}
	return b.String()
}

func subjectToken(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}
