// Package alerts implements the alert store (C8): an append-only ring of
// fired alerts with an acknowledge/resolve lifecycle. Grounded on the
// alerts-engine pattern of a bounded in-memory ring with idempotent
// lifecycle transitions, persisted via internal/util.AtomicWriteJSON the
// way rules are.
package alerts

import (
	"sync"
	"time"

	"github.com/gastown/gt/internal/obs"
	"github.com/gastown/gt/internal/obs/model"
)

const defaultCap = 1000

// PersistFunc is called after every mutation so the store can be durably
// persisted; nil disables persistence (used in tests).
type PersistFunc func([]model.Alert) error

// Store is a bounded, append-only ring of alerts with acknowledge/resolve
// lifecycle transitions.
type Store struct {
	mu      sync.Mutex
	alerts  []model.Alert // oldest-first
	cap     int
	persist PersistFunc
}

// New returns an empty Store capped at n alerts (spec default 1000).
func New(n int, persist PersistFunc) *Store {
	if n <= 0 {
		n = defaultCap
	}
	return &Store{cap: n, persist: persist}
}

// Load seeds the store from a previously persisted slice, e.g. on restart.
func (s *Store) Load(alerts []model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = alerts
	s.evictLocked()
}

// Fire appends a new alert, evicting the oldest if the ring is full.
func (s *Store) Fire(a model.Alert) error {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.evictLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.persistIfSet(snapshot)
}

func (s *Store) evictLocked() {
	if len(s.alerts) > s.cap {
		s.alerts = s.alerts[len(s.alerts)-s.cap:]
	}
}

// List returns every retained alert, oldest-first.
func (s *Store) List() []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []model.Alert {
	out := make([]model.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Acknowledge marks id acknowledged. Idempotent: acknowledging an already
// acknowledged alert is a no-op success.
func (s *Store) Acknowledge(id string, at time.Time) error {
	return s.mutate(id, func(a *model.Alert) {
		if a.Acknowledged {
			return
		}
		a.Acknowledged = true
		t := at
		a.AcknowledgedAt = &t
	})
}

// Resolve marks id resolved. Idempotent for the same reason.
func (s *Store) Resolve(id string, at time.Time) error {
	return s.mutate(id, func(a *model.Alert) {
		if a.Resolved {
			return
		}
		a.Resolved = true
		t := at
		a.ResolvedAt = &t
	})
}

// Delete removes id from the ring entirely.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	idx := -1
	for i, a := range s.alerts {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return obs.ErrNotFound.WithDetail(id)
	}
	s.alerts = append(s.alerts[:idx], s.alerts[idx+1:]...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.persistIfSet(snapshot)
}

func (s *Store) mutate(id string, fn func(*model.Alert)) error {
	s.mu.Lock()
	idx := -1
	for i, a := range s.alerts {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return obs.ErrNotFound.WithDetail(id)
	}
	fn(&s.alerts[idx])
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.persistIfSet(snapshot)
}

func (s *Store) persistIfSet(snapshot []model.Alert) error {
	if s.persist == nil {
		return nil
	}
	return s.persist(snapshot)
}
