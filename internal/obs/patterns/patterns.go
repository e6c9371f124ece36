// Package patterns aggregates log/error events into normalized
// ErrorPattern fingerprints and classifies systemic failures (C6).
// Grounded on internal/feed.Curator's mutex-guarded aggregation maps,
// generalized from curator's short windows to a 24h eviction sweep.
package patterns

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gastown/gt/internal/obs/model"
)

const (
	exampleRingSize   = 5
	systemicThreshold = 5
	evictionAge       = 24 * time.Hour
	maxFingerprintLen = 200
)

var (
	numberRun = regexp.MustCompile(`\d{3,}`)
	hexOrUUID = regexp.MustCompile(`(?i)\b[0-9a-f]{8}(-[0-9a-f]{4}){3}-[0-9a-f]{12}\b|\b[0-9a-f]{12,}\b`)
	wsRun     = regexp.MustCompile(`\s+`)
)

// Fingerprint normalizes message into a stable aggregation key: lowercase,
// collapse whitespace, replace long digit runs with N, replace hex/UUID
// runs with X, truncate to 200 chars.
func Fingerprint(message string) string {
	s := strings.ToLower(message)
	s = wsRun.ReplaceAllString(s, " ")
	s = hexOrUUID.ReplaceAllString(s, "X")
	s = numberRun.ReplaceAllString(s, "N")
	s = strings.TrimSpace(s)
	if len(s) > maxFingerprintLen {
		s = s[:maxFingerprintLen]
	}
	return s
}

// Aggregator tracks one ErrorPattern per normalized fingerprint.
type Aggregator struct {
	mu       sync.Mutex
	patterns map[string]*model.ErrorPattern
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{patterns: make(map[string]*model.ErrorPattern)}
}

// Observe folds a log/error event into its pattern, creating one if needed,
// re-evaluates its systemic classification, and evicts patterns whose
// lastSeen has aged out. Returns the updated pattern.
func (a *Aggregator) Observe(ev model.Event) *model.ErrorPattern {
	a.mu.Lock()
	defer a.mu.Unlock()

	fp := Fingerprint(ev.Message)
	p, ok := a.patterns[fp]
	if !ok {
		p = &model.ErrorPattern{
			Fingerprint:    fp,
			Level:          ev.Severity,
			FirstSeen:      ev.Timestamp,
			AffectedAgents: make(map[string]bool),
			AffectedRigs:   make(map[string]bool),
		}
		a.patterns[fp] = p
	}

	p.Count++
	p.LastSeen = ev.Timestamp
	if ev.Agent != "" {
		p.AffectedAgents[ev.Agent] = true
	}
	if ev.Rig != "" {
		p.AffectedRigs[ev.Rig] = true
	}
	p.Examples = append(p.Examples, ev)
	if len(p.Examples) > exampleRingSize {
		p.Examples = p.Examples[len(p.Examples)-exampleRingSize:]
	}
	p.IsSystemic = len(p.AffectedAgents) >= 2 && len(p.AffectedRigs) >= 2 && p.Count >= systemicThreshold

	a.evictLocked(ev.Timestamp)
	return p
}

func (a *Aggregator) evictLocked(now time.Time) {
	cutoff := now.Add(-evictionAge)
	for fp, p := range a.patterns {
		if p.LastSeen.Before(cutoff) {
			delete(a.patterns, fp)
		}
	}
}

// Patterns returns a snapshot of every currently tracked pattern.
func (a *Aggregator) Patterns() []*model.ErrorPattern {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*model.ErrorPattern, 0, len(a.patterns))
	for _, p := range a.patterns {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Systemic returns only the patterns currently classified as systemic.
func (a *Aggregator) Systemic() []*model.ErrorPattern {
	all := a.Patterns()
	out := all[:0]
	for _, p := range all {
		if p.IsSystemic {
			out = append(out, p)
		}
	}
	return out
}
