// Package diff maintains the per-rig world model (C3) and derives a typed
// event stream from consecutive snapshots (C4). Grounded on
// internal/eventbus's single-writer ticker pattern, generalized from one
// global poller to a per-rig readers-writer guard over RigState as spec'd.
package diff

import (
	"sort"
	"sync"
	"time"

	"github.com/gastown/gt/internal/obs/model"
)

// Engine owns one RigState per rig and turns snapshot application into a
// typed event sequence under a per-rig lock, matching the "no downstream
// work executes under the guard" rule: Apply only computes the diff and
// publishes state, callers forward the returned events afterward.
type Engine struct {
	mu    sync.RWMutex
	rigs  map[string]*model.RigState
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{rigs: make(map[string]*model.RigState)}
}

// State returns a shallow copy of the named rig's current agents/beads for
// read-only callers (HTTP handlers). Missing rigs return a fresh RigState.
func (e *Engine) State(rig string) model.RigState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rs, ok := e.rigs[rig]
	if !ok {
		return *model.NewRigState(rig)
	}
	return *rs
}

// Rigs returns the names of every rig the engine has ever observed.
func (e *Engine) Rigs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.rigs))
	for name := range e.rigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply folds snap into the rig's world model and returns the events
// derived from the transition, in the fixed tie-break order Agents → Hooks
// → Beads → Mail.
func (e *Engine) Apply(snap model.Snapshot) []model.Event {
	e.mu.Lock()
	rs, ok := e.rigs[snap.Rig]
	if !ok {
		rs = model.NewRigState(snap.Rig)
		e.rigs[snap.Rig] = rs
	}
	events := applyLocked(rs, snap)
	e.mu.Unlock()
	return events
}

func applyLocked(rs *model.RigState, snap model.Snapshot) []model.Event {
	var events []model.Event

	nextAgents := make(map[model.AgentKey]model.Agent, len(snap.Agents))
	for _, a := range snap.Agents {
		nextAgents[a.Key()] = a
	}

	// 1. Agent appearance and 3/4. status+hook change, in agent-then-hook
	// order per agent so downstream rules see status before hook. Keys are
	// sorted first: map iteration order is randomized, and the emitted
	// event sequence for a fixed snapshot pair must be reproducible run to
	// run (§8 testable property 1).
	nextKeys := make([]model.AgentKey, 0, len(nextAgents))
	for key := range nextAgents {
		nextKeys = append(nextKeys, key)
	}
	sortAgentKeys(nextKeys)
	for _, key := range nextKeys {
		next := nextAgents[key]
		prev, existed := rs.Agents[key]
		delete(rs.MissingStreak, key)
		if !existed {
			events = append(events, model.Event{
				Type: model.EventAgentAdded, Rig: snap.Rig, Agent: key.Name,
				Role: key.Role, To: next.Status, Timestamp: snap.ObservedAt,
			})
		} else {
			if prev.Status != next.Status {
				events = append(events, model.Event{
					Type: model.EventAgentStatusChange, Rig: snap.Rig, Agent: key.Name,
					Role: key.Role, From: prev.Status, To: next.Status, Timestamp: snap.ObservedAt,
				})
			}
			if prev.HookBeadID != next.HookBeadID {
				events = append(events, model.Event{
					Type: model.EventHookChange, Rig: snap.Rig, Agent: key.Name, Role: key.Role,
					PrevBead: prev.HookBeadID, NewBead: next.HookBeadID, Timestamp: snap.ObservedAt,
				})
			}
		}
	}

	// 2. Agent disappearance with two-snapshot flap suppression, also in
	// sorted-key order for the same determinism reason as above.
	prevKeys := make([]model.AgentKey, 0, len(rs.Agents))
	for key := range rs.Agents {
		prevKeys = append(prevKeys, key)
	}
	sortAgentKeys(prevKeys)
	for _, key := range prevKeys {
		prev := rs.Agents[key]
		if _, present := nextAgents[key]; present {
			continue
		}
		streak := rs.MissingStreak[key] + 1
		rs.MissingStreak[key] = streak
		if streak >= 2 {
			events = append(events, model.Event{
				Type: model.EventAgentRemoved, Rig: snap.Rig, Agent: key.Name,
				Role: key.Role, From: prev.Status, Timestamp: snap.ObservedAt,
			})
			delete(rs.MissingStreak, key)
		}
	}
	rs.Agents = nextAgents

	// 5. Bead status change.
	nextBeads := make(map[string]model.Bead, len(snap.Beads))
	for _, b := range snap.Beads {
		nextBeads[b.ID] = b
		prev, existed := rs.Beads[b.ID]
		if existed && prev.Status != b.Status {
			events = append(events, model.Event{
				Type: model.EventBeadStatusChange, Rig: snap.Rig, BeadID: b.ID,
				FromStatus: prev.Status, ToStatus: b.Status, Timestamp: snap.ObservedAt,
			})
		}
	}
	rs.Beads = nextBeads

	// 6. New mail, ordered by timestamp, deduped by Key(), then advance
	// lastSeenMailTs to the max observed timestamp.
	mails := make([]model.Mail, len(snap.Mail))
	copy(mails, snap.Mail)
	sort.Slice(mails, func(i, j int) bool { return mails[i].Timestamp.Before(mails[j].Timestamp) })

	maxTS := rs.LastSeenMailTS
	for _, m := range mails {
		if !m.Timestamp.After(rs.LastSeenMailTS) {
			continue
		}
		if _, seen := rs.SeenMail[m.Key()]; seen {
			continue
		}
		rs.SeenMail[m.Key()] = struct{}{}
		events = append(events, model.Event{
			Type: model.EventMail, Rig: snap.Rig, MailFrom: m.From, MailTo: m.To,
			Subject: m.Subject, Preview: m.Preview, Timestamp: m.Timestamp,
		})
		if m.Timestamp.After(maxTS) {
			maxTS = m.Timestamp
		}
	}
	rs.LastSeenMailTS = maxTS
	rs.LastObservedAt = snap.ObservedAt

	return events
}

// sortAgentKeys orders keys by (name, role) so diffing the same snapshot
// pair twice always emits agent events in the same order, regardless of Go's
// randomized map iteration.
func sortAgentKeys(keys []model.AgentKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Role < keys[j].Role
	})
}

// PruneSeenMail drops SeenMail entries older than retention to keep the
// per-rig set from growing unbounded across a long-lived process.
func (e *Engine) PruneSeenMail(rig string, olderThan time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, ok := e.rigs[rig]
	if !ok {
		return
	}
	cutoff := rs.LastObservedAt.Add(-olderThan)
	for k := range rs.SeenMail {
		if k.Timestamp.Before(cutoff) {
			delete(rs.SeenMail, k)
		}
	}
}
