// Package history implements the bounded event/agent/bead timeline (C5):
// a FIFO event ring with binary-search timestamp lookup, per-agent and
// per-bead transition logs, and per-minute metric samples. Grounded on the
// mutex-guarded map bookkeeping of internal/feed.Curator, generalized from
// curator's short dedup windows to long-lived bounded rings.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/gastown/gt/internal/obs"
	"github.com/gastown/gt/internal/obs/model"
)

const (
	defaultEventCap       = 5000
	defaultAgentHistoryCap = 200
	metricRetention        = 48 * time.Hour
)

// Store is the bounded, append-only timeline of one gt fleet.
type Store struct {
	mu sync.RWMutex

	events    []model.Event // ring, chronological, len <= cap
	eventCap  int
	eventHead int // index of the oldest retained element's origin offset

	agentHistCap int
	agentHist    map[model.AgentKey][]model.StatusTransition
	beadHist     map[string][]model.StatusTransition

	metrics []model.MetricsSample

	snapshots []snapshotRef // oldest-first, for stateAt reconstruction
}

type snapshotRef struct {
	observedAt time.Time
	snapshot   model.Snapshot
}

// New returns an empty Store with the given caps; zero values select
// spec defaults (N=5000 events, M=200 agent transitions).
func New(eventCap, agentHistCap int) *Store {
	if eventCap <= 0 {
		eventCap = defaultEventCap
	}
	if agentHistCap <= 0 {
		agentHistCap = defaultAgentHistoryCap
	}
	return &Store{
		eventCap:     eventCap,
		agentHistCap: agentHistCap,
		agentHist:    make(map[model.AgentKey][]model.StatusTransition),
		beadHist:     make(map[string][]model.StatusTransition),
	}
}

// Record appends event to the ring in O(1) amortized time, evicting the
// oldest entry once the cap is exceeded, and folds status-change events
// into the per-agent/per-bead transition logs.
func (s *Store) Record(event model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	if len(s.events) > s.eventCap {
		s.events = s.events[len(s.events)-s.eventCap:]
	}

	switch event.Type {
	case model.EventAgentStatusChange:
		key := model.AgentKey{Rig: event.Rig, Name: event.Agent, Role: event.Role}
		hist := append(s.agentHist[key], model.StatusTransition{Status: event.To, Timestamp: event.Timestamp})
		if len(hist) > s.agentHistCap {
			hist = hist[len(hist)-s.agentHistCap:]
		}
		s.agentHist[key] = hist
	case model.EventBeadStatusChange:
		hist := append(s.beadHist[event.BeadID], model.StatusTransition{Status: event.ToStatus, Timestamp: event.Timestamp})
		s.beadHist[event.BeadID] = hist
	}
}

// RecordSnapshot retains snap as a fold-forward origin for stateAt. Callers
// should call this once per successful poll, independent of Record.
func (s *Store) RecordSnapshot(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshotRef{observedAt: snap.ObservedAt, snapshot: snap})

	cutoff := snap.ObservedAt.Add(-metricRetention)
	i := 0
	for ; i < len(s.snapshots); i++ {
		if !s.snapshots[i].observedAt.Before(cutoff) {
			break
		}
	}
	s.snapshots = s.snapshots[i:]
}

// RecordMetricSample appends a per-minute sample, evicting samples older
// than the 48h retention window.
func (s *Store) RecordMetricSample(sample model.MetricsSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, sample)
	cutoff := sample.Timestamp.Add(-metricRetention)
	i := 0
	for ; i < len(s.metrics); i++ {
		if !s.metrics[i].Timestamp.Before(cutoff) {
			break
		}
	}
	s.metrics = s.metrics[i:]
}

// AgentHistory returns a copy of the recorded status transitions for key.
func (s *Store) AgentHistory(key model.AgentKey) []model.StatusTransition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.agentHist[key]
	out := make([]model.StatusTransition, len(hist))
	copy(out, hist)
	return out
}

// BeadHistory returns a copy of the recorded status transitions for beadID.
func (s *Store) BeadHistory(beadID string) []model.StatusTransition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.beadHist[beadID]
	out := make([]model.StatusTransition, len(hist))
	copy(out, hist)
	return out
}

// Metrics returns a copy of every retained per-minute sample.
func (s *Store) Metrics() []model.MetricsSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MetricsSample, len(s.metrics))
	copy(out, s.metrics)
	return out
}

// EventsBetween returns events with start <= ts <= end in chronological
// order, narrowed to those matching filter if non-nil.
func (s *Store) EventsBetween(start, end time.Time, filter func(model.Event) bool) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Timestamp.Before(start)
	})
	var out []model.Event
	for i := lo; i < len(s.events); i++ {
		ev := s.events[i]
		if ev.Timestamp.After(end) {
			break
		}
		if filter == nil || filter(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Bounds returns the min/max timestamp currently held in the event ring.
// ok is false when the ring is empty.
func (s *Store) Bounds() (min, max time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.events[0].Timestamp, s.events[len(s.events)-1].Timestamp, true
}

// StateAt reconstructs the world state as of timestamp by folding every
// retained event forward from the oldest snapshot whose observedAt <=
// timestamp. Deterministic: the same (snapshot, event-prefix) pair always
// yields the same result, since folding only applies the closed event
// union's documented effects.
func (s *Store) StateAt(rig string, timestamp time.Time) (model.RigState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var origin *snapshotRef
	for i := range s.snapshots {
		ref := &s.snapshots[i]
		if ref.snapshot.Rig != rig {
			continue
		}
		if ref.observedAt.After(timestamp) {
			break
		}
		origin = ref
	}
	if origin == nil {
		return model.RigState{}, obs.ErrOutOfHistory
	}

	rs := model.NewRigState(rig)
	for _, a := range origin.snapshot.Agents {
		rs.Agents[a.Key()] = a
	}
	for _, b := range origin.snapshot.Beads {
		rs.Beads[b.ID] = b
	}
	rs.LastObservedAt = origin.observedAt

	lo := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Timestamp.Before(origin.observedAt)
	})
	for i := lo; i < len(s.events); i++ {
		ev := s.events[i]
		if ev.Timestamp.After(timestamp) {
			break
		}
		if ev.Rig != rig {
			continue
		}
		foldEvent(rs, ev)
	}
	return *rs, nil
}

func foldEvent(rs *model.RigState, ev model.Event) {
	switch ev.Type {
	case model.EventAgentAdded:
		key := model.AgentKey{Rig: ev.Rig, Name: ev.Agent, Role: ev.Role}
		rs.Agents[key] = model.Agent{Rig: ev.Rig, Name: ev.Agent, Role: ev.Role, Status: ev.To, LastSeen: ev.Timestamp}
	case model.EventAgentRemoved:
		key := model.AgentKey{Rig: ev.Rig, Name: ev.Agent, Role: ev.Role}
		delete(rs.Agents, key)
	case model.EventAgentStatusChange:
		key := model.AgentKey{Rig: ev.Rig, Name: ev.Agent, Role: ev.Role}
		if a, ok := rs.Agents[key]; ok {
			a.Status = ev.To
			a.LastSeen = ev.Timestamp
			rs.Agents[key] = a
		}
	case model.EventHookChange:
		key := model.AgentKey{Rig: ev.Rig, Name: ev.Agent, Role: ev.Role}
		if a, ok := rs.Agents[key]; ok {
			a.HookBeadID = ev.NewBead
			rs.Agents[key] = a
		}
	case model.EventBeadStatusChange:
		b := rs.Beads[ev.BeadID]
		b.ID = ev.BeadID
		b.AppendStatus(ev.ToStatus, ev.Timestamp)
		rs.Beads[ev.BeadID] = b
	case model.EventMail:
		rs.LastSeenMailTS = ev.Timestamp
	}
}
