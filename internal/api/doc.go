// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package api provides the HTTP control surface over the live node tree.

Clients browse the tree, invoke the controls the supervisors expose (add
connection, add server, edit, connect, remove, ...) and write item values.
Value changes are streamed over a websocket. Every JSON response uses the
APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}, "meta": {...}}

Endpoints:

	GET  /api/v1/health/live                    liveness, no auth
	GET  /api/v1/health/ready                   readiness, 503 until restore completes
	GET  /api/v1/nodes?path=/Plant/Sim1         describe a node; passwords redacted
	GET  /api/v1/connections                    endpoints with server phase and status
	POST /api/v1/actions?path=/Plant/add%20server   body {"params": {"name": "Sim1", ...}}
	PUT  /api/v1/values?path=/Plant/Sim1/Bucket/Setpoint   body {"value": 42}
	GET  /api/v1/ws                             websocket subscriptions
	GET  /metrics                               prometheus exposition

Middleware Stack:

	RequestID -> RealIP -> Recoverer -> CORS -> PrometheusMetrics -> SlowRequests
	    -> RateLimit (httprate) -> Authenticate (JWT, when AUTH_MODE=jwt)
	        -> RequireOperator (actions and values only)

Error mapping: tree, supervisor and driver sentinel errors are mapped to
status codes in errors.go. Unknown errors are answered with 502 and a generic
message; details go to the log only.
*/
package api
