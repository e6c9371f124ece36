package server

import (
	"testing"
	"time"

	"github.com/gastown/gt/internal/obs/model"
)

func TestDecodeSnapshot_DerivesAgentStatus(t *testing.T) {
	raw := []byte(`{
		"agents": [
			{"name": "p1", "role": "polecat", "session_running": true, "state": "ready", "hook_bead": ""},
			{"name": "p2", "role": "polecat", "session_running": true, "state": "working", "hook_bead": "B-1"}
		]
	}`)

	decode := decodeSnapshot()
	snap, err := decode("r1", raw, time.Now())
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}
	if len(snap.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(snap.Agents))
	}
	if snap.Agents[0].Status != model.StatusIdle {
		t.Errorf("p1: expected idle, got %q", snap.Agents[0].Status)
	}
	if snap.Agents[1].Status != model.StatusRunning {
		t.Errorf("p2: expected running, got %q", snap.Agents[1].Status)
	}
	if snap.Agents[1].HookBeadID != "B-1" {
		t.Errorf("p2: expected hook bead B-1, got %q", snap.Agents[1].HookBeadID)
	}
}

func TestDecodeSnapshot_StoppedSessionClearsHook(t *testing.T) {
	raw := []byte(`{
		"agents": [
			{"name": "p1", "role": "polecat", "session_running": false, "state": "working", "hook_bead": "B-9"}
		]
	}`)

	decode := decodeSnapshot()
	snap, err := decode("r1", raw, time.Now())
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}
	agent := snap.Agents[0]
	if agent.Status != model.StatusStopped {
		t.Fatalf("expected stopped, got %q", agent.Status)
	}
	if agent.HookBeadID != "" {
		t.Errorf("expected hookBeadId cleared for a stopped agent, got %q", agent.HookBeadID)
	}
}
