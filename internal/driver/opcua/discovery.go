// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package opcua

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/tomtom215/opclink/internal/discovery"
	"github.com/tomtom215/opclink/internal/driver"
)

// Discoverer asks the discovery endpoint of a host for its servers. The
// returned ids are endpoint URLs and can be used as server ids directly.
type Discoverer struct {
	// Port of the discovery endpoint. Zero means the default 4840.
	Port int
}

var _ discovery.Discoverer = Discoverer{}

// ListServers implements discovery.Discoverer.
func (d Discoverer) ListServers(ctx context.Context, creds driver.Credentials) ([]string, error) {
	if creds.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidEndpoint)
	}
	port := d.Port
	if port <= 0 {
		port = DefaultConfig().Port
	}
	url := "opc.tcp://" + net.JoinHostPort(creds.Host, strconv.Itoa(port))
	apps, err := opcua.FindServers(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opcua: find servers at %s: %w", url, err)
	}
	return ServerIDs(apps), nil
}

// ServerIDs extracts the first discovery URL of every server application.
// Clients, discovery servers and servers without a URL are skipped.
func ServerIDs(apps []*ua.ApplicationDescription) []string {
	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		if app == nil {
			continue
		}
		switch app.ApplicationType {
		case ua.ApplicationTypeClient, ua.ApplicationTypeDiscoveryServer:
			continue
		}
		for _, u := range app.DiscoveryURLs {
			if u != "" {
				ids = append(ids, u)
				break
			}
		}
	}
	return discovery.Normalize(ids)
}
