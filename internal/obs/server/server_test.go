package server

import (
	"testing"
	"time"

	"github.com/gastown/gt/internal/obs/diff"
	"github.com/gastown/gt/internal/obs/history"
	"github.com/gastown/gt/internal/obs/model"
)

func TestSplitNonEmptyLines(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"\n\n", nil},
		{"rig-b\nrig-a\n", []string{"rig-a", "rig-b"}},
		{"rig-a", []string{"rig-a"}},
	}
	for _, c := range cases {
		got := splitNonEmptyLines(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("splitNonEmptyLines(%q) = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("splitNonEmptyLines(%q) = %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestHealthScore(t *testing.T) {
	if got := healthScore(model.AgentActivity{}); got != 1.0 {
		t.Fatalf("empty activity healthScore = %v, want 1.0", got)
	}
	got := healthScore(model.AgentActivity{Active: 3, Error: 1})
	if got != 0.75 {
		t.Fatalf("healthScore = %v, want 0.75", got)
	}
}

func TestSeverityFor(t *testing.T) {
	cases := map[model.Severity]model.AlertSeverity{
		model.SeverityError:   model.AlertCritical,
		model.SeverityWarning: model.AlertWarning,
		model.SeverityInfo:    model.AlertInfo,
	}
	for level, want := range cases {
		if got := severityFor(level); got != want {
			t.Fatalf("severityFor(%v) = %v, want %v", level, got, want)
		}
	}
}

func TestServer_BuildInitialAndCollectBeads(t *testing.T) {
	engine := diff.New()
	engine.Apply(model.Snapshot{
		Rig:        "rig1",
		ObservedAt: time.Now(),
		Agents:     []model.Agent{{Rig: "rig1", Name: "witness-1", Status: model.StatusRunning}},
		Beads:      []model.Bead{{ID: "bead-1", Status: model.BeadOpen, Title: "fix thing"}},
	})

	s := &Server{Engine: engine, History: history.New(100, 10)}

	initial := s.buildInitial()
	if len(initial.Rigs) != 1 || initial.Rigs[0] != "rig1" {
		t.Fatalf("unexpected rigs: %+v", initial.Rigs)
	}
	if len(initial.Agents) != 1 || initial.Agents[0].Name != "witness-1" {
		t.Fatalf("unexpected agents: %+v", initial.Agents)
	}
	if len(initial.Beads) != 1 || initial.Beads[0].ID != "bead-1" {
		t.Fatalf("unexpected beads: %+v", initial.Beads)
	}

	beads := s.collectBeads()
	if _, ok := beads["bead-1"]; !ok {
		t.Fatalf("expected bead-1 in collected beads, got %+v", beads)
	}
}
