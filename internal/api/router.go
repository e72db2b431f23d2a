// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/opclink/internal/auth"
	"github.com/tomtom215/opclink/internal/middleware"
)

// Router wires handlers and middleware into a chi router.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. authMW and chiMW may be nil: authentication
// is then disabled and the default middleware configuration applies.
func NewRouter(handler *Handler, authMW *auth.Middleware, chiMW *ChiMiddleware) *Router {
	if authMW == nil {
		authMW = auth.NewMiddleware(nil)
	}
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, auth: authMW, chiMiddleware: chiMW}
}

// Setup builds the HTTP handler.
//
// Routes:
//
//	GET  /metrics                  prometheus exposition
//	GET  /api/v1/health/live       liveness
//	GET  /api/v1/health/ready      readiness
//	GET  /api/v1/nodes?path=       describe a node
//	GET  /api/v1/connections       endpoint and server summary
//	GET  /api/v1/ws                websocket value subscriptions
//	POST /api/v1/actions?path=     invoke a control (operator)
//	PUT  /api/v1/values?path=      write an item value (operator)
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.SlowRequests(0))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(router.auth.Authenticate)

		r.With(middleware.Compression).Get("/api/v1/nodes", router.handler.GetNode)
		r.With(middleware.Compression).Get("/api/v1/connections", router.handler.ListConnections)
		r.Get("/api/v1/ws", router.handler.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(router.auth.RequireOperator)
			r.Post("/api/v1/actions", router.handler.InvokeAction)
			r.Put("/api/v1/values", router.handler.WriteValue)
		})
	})

	return r
}
