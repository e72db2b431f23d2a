// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package websocket streams node values to browser and script clients.

A client subscribes to node paths and receives every value change of those
nodes. The first subscriber of an item node causes the owning connection
supervisor to subscribe the item at the driver; the last unsubscribe (or
disconnect) releases it.

Protocol:

	-> {"type":"subscribe","data":{"path":"/Plant/Sim1/Random/Int4"}}
	<- {"type":"subscribed","data":{"path":"/Plant/Sim1/Random/Int4"}}
	<- {"type":"value","data":{"path":"/Plant/Sim1/Random/Int4","value":17,"time":"..."}}
	-> {"type":"unsubscribe","data":{"path":"/Plant/Sim1/Random/Int4"}}
	<- {"type":"unsubscribed","data":{"path":"/Plant/Sim1/Random/Int4"}}
	-> {"type":"ping"}
	<- {"type":"pong"}

Failed requests are answered with {"type":"error","data":{"message":...}}.
Requests beyond Limits are answered with "rate limited".

Each client has a read goroutine that handles requests and a write
goroutine that owns the connection writes. The hub goroutine routes value
updates. A client whose send buffer is full is dropped.

Usage with suture:

	hub := websocket.NewHub(tree, websocket.DefaultLimits())
	st.AddMessagingService(services.NewWebSocketHubService(hub))
*/
package websocket
