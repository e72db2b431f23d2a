// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordConnect(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		result string
	}{
		{"successful connect", nil, "success"},
		{"failed connect", errors.New("connection refused"), "failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ConnectAttempts.WithLabelValues("test-driver", tt.result)
			before := testutil.ToFloat64(c)
			RecordConnect("test-driver", 10*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(c); got != before+1 {
				t.Errorf("counter = %v, want %v", got, before+1)
			}
		})
	}
}

func TestSupervisorState(t *testing.T) {
	SetSupervisorState("plant", "Sim1", PhaseConnected, 0)
	if got := testutil.ToFloat64(SupervisorPhase.WithLabelValues("plant", "Sim1")); got != PhaseConnected {
		t.Errorf("phase = %v", got)
	}

	SetSupervisorState("plant", "Sim1", PhaseStopped, 3)
	if got := testutil.ToFloat64(SupervisorFailCount.WithLabelValues("plant", "Sim1")); got != 3 {
		t.Errorf("fail count = %v", got)
	}

	ForgetSupervisor("plant", "Sim1")
	if n := testutil.CollectAndCount(SupervisorPhase); n != 0 {
		t.Errorf("expected no phase series after forget, got %d", n)
	}
}

func TestRecordPing(t *testing.T) {
	for _, outcome := range []string{"skipped", "healthy", "lost", "deferred"} {
		before := testutil.ToFloat64(PingTicks.WithLabelValues(outcome))
		RecordPing(outcome)
		if got := testutil.ToFloat64(PingTicks.WithLabelValues(outcome)); got != before+1 {
			t.Errorf("%s: counter = %v, want %v", outcome, got, before+1)
		}
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/nodes", "200"))
	RecordAPIRequest("GET", "/api/v1/nodes", 200, 5*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/nodes", "200")); got != before+1 {
		t.Errorf("api counter = %v", got)
	}
}
