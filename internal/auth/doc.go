// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package auth provides bearer token authentication for the control API.

Tokens are HS256 JWTs signed with JWT_SECRET. The role claim is either
viewer (browse the tree, subscribe to values) or operator (also invoke
controls and write item values). Tokens are issued out of band, for example
with the server's -issue-token flag.

Token sources, in order:

  - Authorization: Bearer <token>
  - the token cookie
  - the access_token query parameter, on websocket upgrades only

When AUTH_MODE=none the middleware is built with a nil manager and every
request is treated as an operator.
*/
package auth
