// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package nodetree provides the mutable, hierarchical address space that OPCLink
exposes to clients.

# Overview

Every connection, server, folder and data point is a node in a single Tree.
Nodes are stored in an arena indexed by NodeID. Each node keeps a non-owning
parent index and an ordered list of child ids, so there is no ownership cycle
between parents and children and deleting a node is an index removal plus an
unlink from the parent's child list.

	/                          (root)
	├── add connection         (action)
	└── plant-a                (connection: host, domain, user, password)
	    ├── edit / refresh / add server / remove
	    └── Sim1               (server: server id)
	        ├── STATUS         (value: "Connected")
	        ├── connect | refresh + disconnect
	        ├── clear / add item / edit / remove
	        └── Line1
	            └── Temp       (item: item id, access rights)
	                └── remove

# Nodes

A node may carry:
  - string attributes (persisted)
  - an Action, which makes it a control node
  - a value, optionally writable through a SetHandler
  - subscribe/unsubscribe hooks fired on the first subscriber and the last
    unsubscribe

Control nodes and status nodes are marked non-serializable so they are
recreated by their owners instead of being persisted.

# Idempotent Removal

All setters are no-ops on ids that were already removed, and Remove reports
whether anything was deleted instead of failing. Supervisors and concurrent
client actions can therefore race on the same subtree without error handling
at every call site.

# Thread Safety

Tree is safe for concurrent use. Hooks, action handlers, set handlers and
value listeners are always called without the tree lock held, so they may
call back into the tree.

# Snapshots

Snapshot captures the serializable part of a subtree and Load recreates it.
Rename performs the copy and the removal of the original in one critical
section, so a concurrent client action either lands before the swap or sees
a removed node.
*/
package nodetree
