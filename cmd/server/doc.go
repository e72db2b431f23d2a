// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package main is the entry point for the OPCLink server.

OPCLink keeps a set of OPC server connections alive and exposes them as a
live node tree: endpoints below the root, one supervised connection per
server below each endpoint, and the server's items below that. Clients read
and drive the tree over a REST API and subscribe to item values over a
WebSocket.

# Application Architecture

The server runs a Suture v4 process tree:

	RootSupervisor ("opclink")
	├── CoreSupervisor ("core-layer")
	│   ├── Scheduler (ping and reconnect timers)
	│   ├── Connection link (stops every supervisor on shutdown)
	│   └── Snapshot writer (periodic tree snapshot to BadgerDB)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub (value subscriptions)
	│   └── NATS value publisher (optional)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (chi router)

Startup order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Logging: zerolog with JSON/console output modes
 3. Snapshot store: BadgerDB, endpoint passwords sealed with AES-GCM
 4. Node tree: restored from the last snapshot
 5. Drivers and discovery: sim, OPC UA, discovery behind a circuit breaker
 6. Connection link: every persisted connection is restored and connected
 7. Supervisor tree: services above, served until SIGINT or SIGTERM
 8. Shutdown: final snapshot, store closed

# Configuration

	# Server
	HTTP_PORT=8080
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	# Connections
	PING_INTERVAL=5s
	MAX_PING_SKIP=60
	DEFAULT_DRIVER=opcua         # opcua or sim
	OPCUA_PORT=4840

	# Persistence
	STORE_PATH=/data/opclink
	SNAPSHOT_INTERVAL=1m
	CREDENTIAL_SECRET=<secret>   # falls back to JWT_SECRET

	# Authentication
	AUTH_MODE=jwt                # jwt or none
	JWT_SECRET=<32+ chars>

	# Value events (optional)
	NATS_ENABLED=true
	NATS_EMBEDDED=true

A YAML file can be named with CONFIG_PATH.

# Tokens

With AUTH_MODE=jwt, tokens are issued offline with the same secret:

	opclink -issue-token alice:operator
	opclink -issue-token dashboard:viewer

Viewers may read nodes and subscribe; operators may also invoke controls
and write values.
*/
package main
