package diff

import (
	"testing"
	"time"

	"github.com/gastown/gt/internal/obs/model"
)

func agent(rig, name string, status model.AgentStatus, hook string) model.Agent {
	return model.Agent{Rig: rig, Name: name, Role: model.RolePolecat, Status: status, HookBeadID: hook}
}

func TestApply_AgentAdded(t *testing.T) {
	e := New()
	events := e.Apply(model.Snapshot{
		Rig: "r1", ObservedAt: time.Now(),
		Agents: []model.Agent{agent("r1", "a1", model.StatusRunning, "")},
	})
	if len(events) != 1 || events[0].Type != model.EventAgentAdded {
		t.Fatalf("expected one agent_added event, got %+v", events)
	}
}

func TestApply_StatusAndHookChange(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0, Agents: []model.Agent{agent("r1", "a1", model.StatusIdle, "")}})

	events := e.Apply(model.Snapshot{
		Rig: "r1", ObservedAt: t0.Add(time.Second),
		Agents: []model.Agent{agent("r1", "a1", model.StatusRunning, "bead-1")},
	})

	if len(events) != 2 {
		t.Fatalf("expected status+hook change, got %d: %+v", len(events), events)
	}
	if events[0].Type != model.EventAgentStatusChange {
		t.Fatalf("expected status change first, got %v", events[0].Type)
	}
	if events[1].Type != model.EventHookChange || events[1].NewBead != "bead-1" {
		t.Fatalf("expected hook change second, got %+v", events[1])
	}
}

func TestApply_AgentRemovalRequiresTwoMisses(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0, Agents: []model.Agent{agent("r1", "a1", model.StatusRunning, "")}})

	// First miss: no agents_removed yet (flap suppression).
	events := e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0.Add(time.Second)})
	for _, ev := range events {
		if ev.Type == model.EventAgentRemoved {
			t.Fatal("agent_removed fired on first miss")
		}
	}

	// Second consecutive miss: now it fires.
	events = e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0.Add(2 * time.Second)})
	found := false
	for _, ev := range events {
		if ev.Type == model.EventAgentRemoved {
			found = true
		}
	}
	if !found {
		t.Fatal("expected agent_removed on second consecutive miss")
	}
}

func TestApply_AgentRemovalResetsOnReappearance(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0, Agents: []model.Agent{agent("r1", "a1", model.StatusRunning, "")}})
	e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0.Add(time.Second)}) // miss 1

	// Reappears: should not carry the streak forward.
	e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0.Add(2 * time.Second), Agents: []model.Agent{agent("r1", "a1", model.StatusRunning, "")}})
	events := e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0.Add(3 * time.Second)}) // miss 1 again
	for _, ev := range events {
		if ev.Type == model.EventAgentRemoved {
			t.Fatal("streak should have reset on reappearance")
		}
	}
}

func TestApply_BeadStatusChange(t *testing.T) {
	e := New()
	t0 := time.Now()
	e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0, Beads: []model.Bead{{ID: "b1", Status: model.BeadOpen}}})
	events := e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0.Add(time.Second), Beads: []model.Bead{{ID: "b1", Status: model.BeadInProgress}}})
	if len(events) != 1 || events[0].Type != model.EventBeadStatusChange {
		t.Fatalf("expected bead_status_change, got %+v", events)
	}
}

func TestApply_MailDedupAndOrdering(t *testing.T) {
	e := New()
	t0 := time.Now()
	m1 := model.Mail{Rig: "r1", From: "a", To: "b", Timestamp: t0, Path: "p1"}
	m2 := model.Mail{Rig: "r1", From: "a", To: "b", Timestamp: t0.Add(time.Second), Path: "p2"}

	events := e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0, Mail: []model.Mail{m2, m1}})
	if len(events) != 2 {
		t.Fatalf("expected 2 mail events, got %d", len(events))
	}
	if events[0].MailFrom != "a" || events[0].Timestamp.After(events[1].Timestamp) {
		t.Fatalf("expected chronological order, got %+v", events)
	}

	// Re-applying the same mail must not duplicate.
	events = e.Apply(model.Snapshot{Rig: "r1", ObservedAt: t0, Mail: []model.Mail{m1, m2}})
	if len(events) != 0 {
		t.Fatalf("expected no duplicate mail events, got %+v", events)
	}
}

func TestApply_Deterministic(t *testing.T) {
	snap1 := model.Snapshot{Rig: "r1", ObservedAt: time.Now(), Agents: []model.Agent{agent("r1", "a1", model.StatusIdle, "")}}
	snap2 := model.Snapshot{Rig: "r1", ObservedAt: snap1.ObservedAt.Add(time.Second), Agents: []model.Agent{agent("r1", "a1", model.StatusRunning, "")}}

	e1, e2 := New(), New()
	e1.Apply(snap1)
	e2.Apply(snap1)
	ev1 := e1.Apply(snap2)
	ev2 := e2.Apply(snap2)

	if len(ev1) != len(ev2) {
		t.Fatalf("non-deterministic event count: %d vs %d", len(ev1), len(ev2))
	}
	for i := range ev1 {
		if ev1[i] != ev2[i] {
			t.Fatalf("non-deterministic event at %d: %+v vs %+v", i, ev1[i], ev2[i])
		}
	}
}

// TestApply_DeterministicMultiAgent exercises the map-iteration-order
// regression directly: with several agents changing status and a couple
// dropping out in the same snapshot pair, the emitted sequence must be
// byte-identical across repeated runs, not just the same multiset.
func TestApply_DeterministicMultiAgent(t *testing.T) {
	names := []string{"zeta", "mike", "alpha", "delta", "charlie", "bravo"}

	snap1 := model.Snapshot{Rig: "r1", ObservedAt: time.Now()}
	for _, n := range names {
		snap1.Agents = append(snap1.Agents, agent("r1", n, model.StatusIdle, ""))
	}

	snap2 := model.Snapshot{Rig: "r1", ObservedAt: snap1.ObservedAt.Add(time.Second)}
	for _, n := range names[:4] {
		snap2.Agents = append(snap2.Agents, agent("r1", n, model.StatusRunning, "bead-"+n))
	}

	var first []model.Event
	for i := 0; i < 20; i++ {
		e := New()
		e.Apply(snap1)
		events := e.Apply(snap2)
		if i == 0 {
			first = events
			continue
		}
		if len(events) != len(first) {
			t.Fatalf("run %d: non-deterministic event count: %d vs %d", i, len(events), len(first))
		}
		for j := range events {
			if events[j] != first[j] {
				t.Fatalf("run %d: non-deterministic event at %d: %+v vs %+v", i, j, events[j], first[j])
			}
		}
	}
}
