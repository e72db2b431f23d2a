// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/opclink/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientIDCounter orders clients for deterministic dispatch.
var clientIDCounter atomic.Uint64

// inbound is a client request.
type inbound struct {
	Type string      `json:"type"`
	Data PathRequest `json:"data"`
}

// Client is one websocket connection.
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan Message
	done   chan struct{}
	closed bool
}

// NewClient creates a client for conn.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(hub.limits.MessagesPerSecond), hub.limits.Burst),
		send:    make(chan Message, 256),
		done:    make(chan struct{}),
	}
}

// ID returns the client's ordering id.
func (c *Client) ID() uint64 {
	return c.id
}

// RegisterClient hands c to the hub. It fails if ctx ends first, for
// example when the hub is not running.
func (h *Hub) RegisterClient(ctx context.Context, c *Client) error {
	select {
	case h.Register <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeSend is called by the hub with h.mu held.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	close(c.done)
}

// reply queues a direct response. It is dropped if the client is closed
// or its buffer is full.
func (c *Client) reply(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) replyError(err error, path string) {
	c.reply(Message{Type: MessageTypeError, Data: ErrorData{Message: err.Error(), Path: path}})
}

// handle processes one request.
func (c *Client) handle(msg inbound) {
	if !c.limiter.Allow() {
		c.replyError(ErrRateLimited, msg.Data.Path)
		return
	}
	switch msg.Type {
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})

	case MessageTypeSubscribe:
		value, has, err := c.hub.Subscribe(c, msg.Data.Path)
		if err != nil {
			c.replyError(err, msg.Data.Path)
			return
		}
		c.reply(Message{Type: MessageTypeSubscribed, Data: msg.Data})
		if has {
			c.reply(Message{Type: MessageTypeValue, Data: ValueData{Path: msg.Data.Path, Value: value, Time: time.Now().UTC()}})
		}

	case MessageTypeUnsubscribe:
		if err := c.hub.Unsubscribe(c, msg.Data.Path); err != nil {
			c.replyError(err, msg.Data.Path)
			return
		}
		c.reply(Message{Type: MessageTypeUnsubscribed, Data: msg.Data})

	default:
		c.replyError(ErrUnknownType, "")
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Msg("unexpected websocket close error")
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.replyError(ErrMalformed, "")
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Debug().Err(err).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
