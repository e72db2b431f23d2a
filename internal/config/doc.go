// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

/*
Package config loads the OPCLink process configuration.

Sources are layered with koanf, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, ./config.yaml or /etc/opclink/config.yaml
 3. Environment variables such as HTTP_PORT, PING_INTERVAL or NATS_URL

Example YAML:

	server:
	  port: 8080
	supervisor:
	  ping_interval: 5s
	  max_ping_skip: 60
	store:
	  path: /var/lib/opclink
	nats:
	  enabled: true
	  embedded_server: false
	  url: nats://broker:4222

Load validates the result and returns an error naming the offending
environment variable. CredentialEncryptor protects endpoint passwords in
the persisted tree.
*/
package config
