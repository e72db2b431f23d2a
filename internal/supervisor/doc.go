// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package supervisor keeps remote OPC servers connected and mirrors them into
the node tree.

# Layout

Three registries own consecutive levels of the tree:

	/                        Link: "add connection"
	/Plant                   Endpoint: host, domain, user, password
	/Plant/Sim1              ConnectionSupervisor: server id, driver, STATUS
	/Plant/Sim1/Random/Int4  ItemRegistry: one node per data item

Every level exposes its controls as action nodes (edit, refresh, remove,
add server, connect, disconnect, add item, clear). Action nodes and STATUS
are not serializable, so a tree snapshot contains only configuration and
can be restored with Link.Init.

# Connection Lifecycle

A ConnectionSupervisor moves between three phases:

	Stopped --Init--> Connecting --ok--> Connected
	   ^                   |                 |
	   +------failure------+                 |
	   +------------stop/disconnect----------+

Init and stop are serialized per supervisor. A repeating ping runs every
Options.PingInterval. When the driver reports the connection lost, the ping
backs off for min(failCount, Options.MaxPingSkip) cycles and schedules one
reconnect. A reconnect scheduled before a Disconnect, Remove or newer Init
is discarded when it runs.

# Rename

Editing the name of an endpoint or a server detaches the old object,
moves the serializable subtree under the new name in one tree operation
and restores a fresh object there. Clients acting on the old node after the
swap see ErrRemoved.

# Process Tree

SupervisorTree wraps suture with three layers:

	opclink (root)
	├── core-layer        scheduler, connection link, snapshot writer
	├── messaging-layer   websocket hub, NATS events
	└── api-layer         HTTP server

Service wrappers live in the services subpackage. Failures in one layer
are restarted by suture with backoff and do not affect the others.

# Example

	tree := nodetree.New()
	ticker := scheduler.NewTicker()
	link, err := supervisor.NewLink(supervisor.Deps{
	    Tree:      tree,
	    Scheduler: ticker,
	    Options:   supervisor.DefaultOptions(),
	})
	if err != nil {
	    return err
	}
	link.Init(ctx)

	st, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	st.AddCoreService(ticker)
	st.AddCoreService(services.NewLinkService(link))
	return st.Serve(ctx)

# Thread Safety

All exported methods are safe for concurrent use. Action handlers run on
the caller's goroutine and ping callbacks on the scheduler goroutine; both
go through the same per-supervisor locks.
*/
package supervisor
