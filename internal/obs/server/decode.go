package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gastown/gt/internal/obs/model"
)

// statusPayload mirrors the aggregate shape returned by `gt status --rig
// <rig> --json`: the fields a combined poll needs from session list,
// polecat list, and bd show, in one round trip.
type statusPayload struct {
	Rig    string         `json:"rig"`
	Agents []agentPayload `json:"agents"`
	Beads  []beadPayload  `json:"beads"`
	Mail   []mailPayload  `json:"mail"`
}

// agentPayload mirrors "polecat list"/"polecat status" (§6.1): the CLI
// never reports a precomputed status, only the raw signals status is
// derived from.
type agentPayload struct {
	Name           string `json:"name"`
	Role           string `json:"role"`
	SessionRunning bool   `json:"session_running"`
	State          string `json:"state"`
	HookBeadID     string `json:"hook_bead"`
	SessionID      string `json:"session_id"`
}

type beadPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Owner       string   `json:"owner"`
	Assignee    string   `json:"assignee"`
	DependsOn   []string `json:"dependsOn"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type mailPayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
	Subject   string `json:"subject"`
	Preview   string `json:"preview"`
	Content   string `json:"content"`
	Path      string `json:"path"`
}

// decodeSnapshot parses the raw JSON returned by "gt status --rig <rig>
// --json" into a model.Snapshot, matching the field names documented for
// session list/polecat list/bd show.
func decodeSnapshot() func(rig string, raw []byte, observedAt time.Time) (model.Snapshot, error) {
	return func(rig string, raw []byte, observedAt time.Time) (model.Snapshot, error) {
		var payload statusPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return model.Snapshot{}, fmt.Errorf("decoding status for rig %s: %w", rig, err)
		}

		start := time.Now()
		snap := model.Snapshot{
			Rig:        rig,
			ObservedAt: observedAt,
		}

		for _, a := range payload.Agents {
			status := model.DeriveAgentStatus(a.SessionRunning, a.State)
			hookBeadID := a.HookBeadID
			if status == model.StatusStopped {
				// Invariant (§3): hookBeadId set implies status is
				// running or idle, never stopped.
				hookBeadID = ""
			}
			snap.Agents = append(snap.Agents, model.Agent{
				Rig:            rig,
				Name:           a.Name,
				Role:           model.Role(a.Role),
				Status:         status,
				SessionRunning: a.SessionRunning,
				State:          a.State,
				HookBeadID:     hookBeadID,
				SessionID:      sessionIDOrDefault(a.SessionID, rig, a.Name),
				LastSeen:       observedAt,
			})
		}

		for _, b := range payload.Beads {
			snap.Beads = append(snap.Beads, model.Bead{
				ID:        b.ID,
				Title:     b.Title,
				Status:    model.BeadStatus(b.Status),
				Priority:  b.Priority,
				Owner:     b.Owner,
				Assignee:  b.Assignee,
				DependsOn: b.DependsOn,
				CreatedAt: parseTimeOrZero(b.CreatedAt),
				UpdatedAt: parseTimeOrZero(b.UpdatedAt),
			})
		}

		for _, m := range payload.Mail {
			snap.Mail = append(snap.Mail, model.Mail{
				Rig:       rig,
				From:      m.From,
				To:        m.To,
				Timestamp: parseTimeOrZero(m.Timestamp),
				Subject:   m.Subject,
				Preview:   m.Preview,
				Content:   m.Content,
				Path:      m.Path,
			})
		}

		snap.DurationMs = time.Since(start).Milliseconds()
		return snap, nil
	}
}

func sessionIDOrDefault(sessionID, rig, name string) string {
	if sessionID != "" {
		return sessionID
	}
	return model.SyntheticSessionID(rig, name)
}

func parseTimeOrZero(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
