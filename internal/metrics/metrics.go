// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

// Package metrics holds the Prometheus collectors exported on /metrics.
//
// Collectors are package-level promauto vars; callers use the Record*
// helpers rather than touching label sets directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phase values reported by SupervisorPhase.
const (
	PhaseStopped    = 0
	PhaseConnecting = 1
	PhaseConnected  = 2
)

var (
	// Supervisor Metrics
	SupervisorPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opclink_supervisor_phase",
			Help: "Connection phase per supervisor (0=stopped, 1=connecting, 2=connected)",
		},
		[]string{"endpoint", "server"},
	)

	SupervisorFailCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opclink_supervisor_fail_count",
			Help: "Consecutive failed connection attempts per supervisor",
		},
		[]string{"endpoint", "server"},
	)

	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opclink_connect_attempts_total",
			Help: "Total number of driver connect attempts by result",
		},
		[]string{"driver", "result"}, // "success", "failure"
	)

	ConnectDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opclink_connect_duration_seconds",
			Help:    "Duration of driver connect calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"driver"},
	)

	PingTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opclink_ping_ticks_total",
			Help: "Total number of ping ticks by outcome",
		},
		[]string{"outcome"}, // "skipped", "healthy", "lost", "deferred"
	)

	ReconnectsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opclink_reconnects_scheduled_total",
			Help: "Total number of reconnect tasks dispatched by failed pings",
		},
	)

	ItemsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opclink_items_registered",
			Help: "Current number of items across all supervisors",
		},
	)

	ItemWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opclink_item_writes_total",
			Help: "Total number of client writes forwarded to drivers",
		},
		[]string{"result"},
	)

	// Discovery Metrics
	DiscoveryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opclink_discovery_requests_total",
			Help: "Total number of server discovery requests by result",
		},
		[]string{"result"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Snapshot Metrics
	SnapshotsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opclink_snapshots_total",
			Help: "Total number of tree snapshots written by result",
		},
		[]string{"result"},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opclink_events_published_total",
			Help: "Total number of value events published to NATS by result",
		},
		[]string{"result"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordConnect records one driver connect attempt.
func RecordConnect(driver string, duration time.Duration, err error) {
	ConnectAttempts.WithLabelValues(driver, result(err)).Inc()
	ConnectDuration.WithLabelValues(driver).Observe(duration.Seconds())
}

// SetSupervisorState publishes the phase and fail count of one supervisor.
func SetSupervisorState(endpoint, server string, phase, failCount int) {
	SupervisorPhase.WithLabelValues(endpoint, server).Set(float64(phase))
	SupervisorFailCount.WithLabelValues(endpoint, server).Set(float64(failCount))
}

// ForgetSupervisor drops the series of a removed supervisor.
func ForgetSupervisor(endpoint, server string) {
	SupervisorPhase.DeleteLabelValues(endpoint, server)
	SupervisorFailCount.DeleteLabelValues(endpoint, server)
}

// RecordPing records the outcome of one ping tick.
func RecordPing(outcome string) {
	PingTicks.WithLabelValues(outcome).Inc()
}

// RecordItemWrite records a client write.
func RecordItemWrite(err error) {
	ItemWrites.WithLabelValues(result(err)).Inc()
}

// RecordDiscovery records a discovery request.
func RecordDiscovery(err error) {
	DiscoveryRequests.WithLabelValues(result(err)).Inc()
}

// RecordSnapshot records a snapshot write.
func RecordSnapshot(err error) {
	SnapshotsSaved.WithLabelValues(result(err)).Inc()
}

// RecordEventPublish records a NATS publish.
func RecordEventPublish(err error) {
	EventsPublished.WithLabelValues(result(err)).Inc()
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
