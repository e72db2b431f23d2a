// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/opclink/internal/supervisor"
)

// ReadyStatus is the body of the readiness probe.
type ReadyStatus struct {
	Ready       bool    `json:"ready"`
	Uptime      float64 `json:"uptime"`
	Connections int     `json:"connections"`
	Servers     int     `json:"servers"`
	Connected   int     `json:"connected"`
	WSClients   int     `json:"ws_clients"`
}

// HealthLive handles liveness probe requests (Kubernetes-style)
// Returns 200 OK if the process is alive, regardless of dependencies
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests. It answers 503 until the
// persisted connections have been restored. Servers that are not connected
// do not make the process unready; their state is reported instead.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := ReadyStatus{
		Ready:       h.ready.Load(),
		Uptime:      time.Since(h.startTime).Seconds(),
		Connections: len(h.link.Endpoints()),
	}
	for _, s := range h.link.Supervisors() {
		status.Servers++
		if s.State().Phase == supervisor.PhaseConnected {
			status.Connected++
		}
	}
	if h.hub != nil {
		status.WSClients = h.hub.GetClientCount()
	}

	if !status.Ready {
		respondJSON(w, r, http.StatusServiceUnavailable, &APIResponse{
			Data:  status,
			Error: &APIError{Code: ErrCodeServiceUnavailable, Message: "Connections are still being restored"},
		})
		return
	}
	respondOK(w, r, status)
}
