// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package api

import (
	"sync/atomic"
	"time"

	"github.com/tomtom215/opclink/internal/config"
	"github.com/tomtom215/opclink/internal/nodetree"
	"github.com/tomtom215/opclink/internal/supervisor"
	ws "github.com/tomtom215/opclink/internal/websocket"
)

// Handler serves the control API over a Link's node tree.
//
// Handler methods are split across files:
//   - handlers_nodes.go: node browsing, control invocation, value writes
//   - handlers_health.go: liveness and readiness probes
//   - handlers_ws.go: websocket upgrade
type Handler struct {
	link      *supervisor.Link
	tree      *nodetree.Tree
	hub       *ws.Hub
	config    *config.Config
	startTime time.Time
	ready     atomic.Bool
}

// NewHandler creates a handler. hub may be nil, in which case websocket
// upgrades answer 503. cfg may be nil in tests; the websocket origin check
// then accepts any origin.
//
// Example:
//
//	handler := api.NewHandler(link, hub, cfg)
//	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager), api.NewChiMiddlewareFromConfig(cfg.Security))
//	server := &http.Server{Addr: cfg.Server.Addr(), Handler: router.Setup()}
func NewHandler(link *supervisor.Link, hub *ws.Hub, cfg *config.Config) *Handler {
	return &Handler{
		link:      link,
		tree:      link.Tree(),
		hub:       hub,
		config:    cfg,
		startTime: time.Now(),
	}
}

// SetReady flips the readiness probe. The server marks itself ready once
// the persisted connections have been restored.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}
