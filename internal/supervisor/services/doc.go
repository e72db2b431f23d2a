// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package services adapts long-running OPCLink components to suture.Service.

Each wrapper translates one lifecycle pattern into suture's Serve(ctx):

	ListenAndServe/Shutdown  HTTPServerService     (api layer)
	RunWithContext           WebSocketHubService   (messaging layer)
	Start/Shutdown           EventsService         (messaging layer)
	periodic task            SnapshotService       (core layer)
	wait then stop           LinkService           (core layer)

The scheduler that drives ping ticks (scheduler.Ticker) already implements
suture.Service and is added to the core layer directly.

Return values follow suture conventions: ctx.Err() on requested shutdown,
any other error makes the supervisor restart the service with backoff.
*/
package services
