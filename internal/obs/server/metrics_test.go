package server

import (
	"context"
	"testing"

	"github.com/gastown/gt/internal/obs/model"
)

func TestServerMetrics_NilSafe(t *testing.T) {
	var sm *serverMetrics
	// None of these should panic on a nil receiver.
	sm.recordEvent(context.Background(), "agent_status_change")
	sm.recordAlert(context.Background(), "warning")
	sm.recordPollError(context.Background(), "rig1")
	sm.updateGauges(3, 0.9, model.AgentActivity{Active: 1})
	sm.recordPollDuration(12.5)
	sm.recordEventVolume(4)
}

func TestNewServerMetrics(t *testing.T) {
	sm, err := newServerMetrics()
	if err != nil {
		t.Fatalf("newServerMetrics: %v", err)
	}
	if sm == nil {
		t.Fatal("expected non-nil serverMetrics")
	}
	sm.recordEvent(context.Background(), "agent_status_change")
	sm.recordAlert(context.Background(), "critical")
	sm.recordPollError(context.Background(), "rig1")
	sm.updateGauges(2, 0.5, model.AgentActivity{Active: 1, Idle: 2, Error: 1, Hooked: 1})
	sm.recordPollDuration(42)
	sm.recordEventVolume(7)

	sm.gaugeMu.RLock()
	defer sm.gaugeMu.RUnlock()
	if sm.wsConnections != 2 || sm.healthScore != 0.5 {
		t.Fatalf("unexpected gauge values: conns=%d health=%v", sm.wsConnections, sm.healthScore)
	}
	if sm.agentActive != 1 || sm.agentIdle != 2 || sm.agentError != 1 || sm.agentHooked != 1 {
		t.Fatalf("unexpected agent activity gauges: %+v", sm)
	}
	if sm.pollDurationMs != 42 || sm.eventVolume != 7 {
		t.Fatalf("unexpected poll duration/event volume gauges: %+v", sm)
	}
}
