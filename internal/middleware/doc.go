// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package middleware provides the HTTP middleware shared by the control API.

Key Components:

  - RequestID: request id tagging with logging context integration
  - PrometheusMetrics: request count and latency per chi route pattern
  - SlowRequests: warning log for requests over a latency threshold
  - Compression: gzip response bodies

All middleware use the func(http.Handler) http.Handler shape, so they plug
directly into a chi router:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.SlowRequests(time.Second))
	r.With(middleware.Compression).Get("/api/v1/nodes", h.GetNode)

Websocket upgrades pass through every middleware: the metrics and slow-log
wrappers keep http.Hijacker, and Compression skips upgrade requests.
*/
package middleware
