// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package opcua binds connection supervisors to OPC UA servers using
github.com/gopcua/opcua.

A server id is either a full endpoint URL ("opc.tcp://plc1:4840/line2") or a
path that is appended to the endpoint host and the configured port. After
connecting, the driver browses the address space below the Objects folder
(or the configured root) and announces every variable as an item. The
browse names of the enclosing objects become the item's folder path and the
node id string becomes the item id.

Values are delivered through a single OPC UA subscription per connection.
Each subscribed item is one monitored item, keyed by a client handle.

Writes are coerced to the Go type of the item's current value, so a JSON
number written to an Int16 variable reaches the server as an Int16.

Settings understood by the driver (stored as "setting.<key>" attributes):

	endpoint   full endpoint URL, overrides host, port and server id
	port       TCP port, defaults to the configured driver port
	root       node id where browsing starts, defaults to the Objects folder
	depth      maximum browse depth
	interval   publishing interval of the subscription, e.g. "500ms"

Credentials map to OPC UA user name authentication. A non-empty domain is
prefixed as DOMAIN\user. Without a user the session is anonymous.
*/
package opcua
