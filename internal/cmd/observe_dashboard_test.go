package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gastown/gt/internal/obs/client"
	"github.com/gastown/gt/internal/obs/model"
)

// withTestServer points observeServerAddr at an httptest server for the
// duration of the test and restores the previous value after.
func withTestServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	prev := observeServerAddr
	observeServerAddr = srv.URL
	t.Cleanup(func() { observeServerAddr = prev })
}

func fakeStateHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/state" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		resp := client.StateResponse{
			Rigs: map[string]client.RigStateView{
				"rig-b": {
					Name:   "rig-b",
					Agents: []model.Agent{{Rig: "rig-b", Name: "witness-1", Status: model.StatusRunning, HookBeadID: "bead-2"}},
					Beads:  []model.Bead{{ID: "bead-2", Status: model.BeadInProgress, Title: "ship it", Owner: "crew-1"}},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestRunObserveTable(t *testing.T) {
	withTestServer(t, fakeStateHandler(t))

	cmd := observeCmd
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runObserveDefault(cmd, nil); err != nil {
		t.Fatalf("runObserveDefault: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "rig-b") || !strings.Contains(got, "witness-1") {
		t.Fatalf("expected table to mention rig and agent, got:\n%s", got)
	}
}

func TestRunObserveTasks(t *testing.T) {
	withTestServer(t, fakeStateHandler(t))

	cmd := observeTasksCmd
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runObserveTasks(cmd, nil); err != nil {
		t.Fatalf("runObserveTasks: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "bead-2") || !strings.Contains(got, "in_progress") {
		t.Fatalf("expected bead row in output, got:\n%s", got)
	}
}

func TestRunObserveJSON(t *testing.T) {
	withTestServer(t, fakeStateHandler(t))

	cmd := observeJSONCmd
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runObserveJSON(cmd, nil); err != nil {
		t.Fatalf("runObserveJSON: %v", err)
	}
	var decoded client.StateResponse
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := decoded.Rigs["rig-b"]; !ok {
		t.Fatalf("expected rig-b in decoded output, got %+v", decoded.Rigs)
	}
}

func TestRunObserveExport(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events/export" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[{"type":"agent_added"}]`))
	})

	cmd := observeExportCmd
	var out bytes.Buffer
	cmd.SetOut(&out)
	observeExportFormat = "json"

	if err := runObserveExport(cmd, nil); err != nil {
		t.Fatalf("runObserveExport: %v", err)
	}
	if !strings.Contains(out.String(), "agent_added") {
		t.Fatalf("expected exported events in output, got:\n%s", out.String())
	}
}

func TestRunObserveReplay(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/beads/bead-1/history" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"status": "open", "timestamp": "2024-01-01T00:00:00Z"},
			{"status": "done", "timestamp": "2024-01-02T00:00:00Z"},
		})
	})

	cmd := observeReplayCmd
	var out bytes.Buffer
	cmd.SetOut(&out)
	observeReplayStart = false

	if err := runObserveReplay(cmd, []string{"bead-1"}); err != nil {
		t.Fatalf("runObserveReplay: %v", err)
	}
	got := out.String()
	if strings.Count(got, "bead-1") != 2 {
		t.Fatalf("expected both transitions printed, got:\n%s", got)
	}
}

func TestRunObserveReplay_StartOnly(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"status": "open", "timestamp": "2024-01-01T00:00:00Z"},
			{"status": "done", "timestamp": "2024-01-02T00:00:00Z"},
		})
	})

	cmd := observeReplayCmd
	var out bytes.Buffer
	cmd.SetOut(&out)
	observeReplayStart = true
	t.Cleanup(func() { observeReplayStart = false })

	if err := runObserveReplay(cmd, []string{"bead-1"}); err != nil {
		t.Fatalf("runObserveReplay: %v", err)
	}
	got := out.String()
	if strings.Count(got, "bead-1") != 1 {
		t.Fatalf("expected only the first transition printed, got:\n%s", got)
	}
	if !strings.Contains(got, "open") || strings.Contains(got, "done") {
		t.Fatalf("expected only the open transition, got:\n%s", got)
	}
}
