// Package model defines the world-model types shared by the observability
// pipeline: rigs, agents, beads, mail, and the events derived from their
// diffs.
package model

import (
	"encoding/json"
	"time"
)

// Role identifies an agent's function within a rig.
type Role string

const (
	RoleMayor    Role = "mayor"
	RoleWitness  Role = "witness"
	RoleRefinery Role = "refinery"
	RoleCrew     Role = "crew"
	RolePolecat  Role = "polecat"
)

// AgentStatus is the agent's derived lifecycle status.
type AgentStatus string

const (
	StatusRunning AgentStatus = "running"
	StatusIdle    AgentStatus = "idle"
	StatusStopped AgentStatus = "stopped"
	StatusError   AgentStatus = "error"
	StatusUnknown AgentStatus = "unknown"
)

// Agent is one worker within a rig.
type Agent struct {
	Rig            string      `json:"rig"`
	Name           string      `json:"name"`
	Role           Role        `json:"role"`
	Status         AgentStatus `json:"status"`
	SessionRunning bool        `json:"session_running"`
	State          string      `json:"state"`
	HookBeadID     string      `json:"hook_bead_id,omitempty"`
	SessionID      string      `json:"session_id"`
	LastSeen       time.Time   `json:"last_seen"`
}

// DeriveAgentStatus computes the 5-state Agent.Status from the raw signals
// the external tool reports (§3): whether the OS session is running, and
// its free-form "state" string (e.g. working/ready/done). Grounded on
// internal/status.Compute's priority-ordered signal dispatch, collapsed
// from that package's 7-state model down to the 5 states this system
// tracks: a dead/absent session always wins as stopped, then the
// session's own reported state maps onto running/idle/error, with any
// state this tool version doesn't recognize falling back to unknown
// rather than guessed at.
func DeriveAgentStatus(sessionRunning bool, state string) AgentStatus {
	if !sessionRunning {
		return StatusStopped
	}
	switch state {
	case "working":
		return StatusRunning
	case "ready", "done":
		return StatusIdle
	case "error":
		return StatusError
	default:
		return StatusUnknown
	}
}

// Key returns the (rig, name, role) identity tuple as a map key.
func (a *Agent) Key() AgentKey {
	return AgentKey{Rig: a.Rig, Name: a.Name, Role: a.Role}
}

// AgentKey uniquely identifies an agent within the fleet.
type AgentKey struct {
	Rig  string
	Name string
	Role Role
}

// SyntheticSessionID returns the gt-{rig}-{name} session id convention.
func SyntheticSessionID(rig, name string) string {
	return "gt-" + rig + "-" + name
}

// BeadStatus is a bead's lifecycle status. Unknown values observed from the
// external tool are carried through verbatim rather than rejected — see
// spec Open Question on bead schema variance.
type BeadStatus string

const (
	BeadOpen       BeadStatus = "open"
	BeadHooked     BeadStatus = "hooked"
	BeadInProgress BeadStatus = "in_progress"
	BeadClosed     BeadStatus = "closed"
	BeadDone       BeadStatus = "done"
	BeadBlocked    BeadStatus = "blocked"
	BeadDeferred   BeadStatus = "deferred"
)

// IsTerminal reports whether status is a terminal lifecycle state.
func (s BeadStatus) IsTerminal() bool {
	return s == BeadClosed || s == BeadDone
}

// StatusTransition records one entry in a bead's status history.
type StatusTransition struct {
	Status    BeadStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
}

// Bead is a unit of work tracked by the external tool.
type Bead struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Status        BeadStatus         `json:"status"`
	Priority      string             `json:"priority,omitempty"`
	Owner         string             `json:"owner,omitempty"`
	Assignee      string             `json:"assignee,omitempty"`
	DependsOn     []string           `json:"depends_on,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	ClosedAt      *time.Time         `json:"closed_at,omitempty"`
	StatusHistory []StatusTransition `json:"status_history,omitempty"`
}

// AppendStatus appends a status transition if it differs from the current
// tail, keeping StatusHistory monotone non-decreasing in timestamp.
func (b *Bead) AppendStatus(status BeadStatus, at time.Time) {
	if n := len(b.StatusHistory); n > 0 && b.StatusHistory[n-1].Status == status {
		return
	}
	b.StatusHistory = append(b.StatusHistory, StatusTransition{Status: status, Timestamp: at})
	b.Status = status
	b.UpdatedAt = at
	if status.IsTerminal() && b.ClosedAt == nil {
		closedAt := at
		b.ClosedAt = &closedAt
	}
}

// Mail is an observed message between agents within a rig.
type Mail struct {
	Rig       string    `json:"rig"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject,omitempty"`
	Preview   string    `json:"preview,omitempty"`
	Content   string    `json:"content,omitempty"`
	Path      string    `json:"path"`
}

// Key returns the de-duplication key recommended by the spec's Open
// Question on mail timestamp collisions: (rig, from, to, timestamp, path).
func (m Mail) Key() MailKey {
	return MailKey{Rig: m.Rig, From: m.From, To: m.To, Timestamp: m.Timestamp, Path: m.Path}
}

// MailKey is the de-duplication identity of a Mail entry.
type MailKey struct {
	Rig       string
	From      string
	To        string
	Timestamp time.Time
	Path      string
}

// Snapshot is the fleet state produced by one poll cycle of one rig.
type Snapshot struct {
	Rig        string
	ObservedAt time.Time
	Agents     []Agent
	Beads      []Bead
	Mail       []Mail
	DurationMs int64
}

// RigState is the world model's authoritative view of one rig.
type RigState struct {
	Name            string
	Agents          map[AgentKey]Agent
	Beads           map[string]Bead
	LastSeenMailTS  time.Time
	SeenMail        map[MailKey]struct{}
	MissingStreak   map[AgentKey]int
	LastObservedAt  time.Time
}

// NewRigState returns an empty RigState for the named rig.
func NewRigState(name string) *RigState {
	return &RigState{
		Name:          name,
		Agents:        make(map[AgentKey]Agent),
		Beads:         make(map[string]Bead),
		SeenMail:      make(map[MailKey]struct{}),
		MissingStreak: make(map[AgentKey]int),
	}
}

// rigStateWire is RigState's JSON representation: AgentKey isn't a valid
// JSON map key, so agents are carried as a slice instead.
type rigStateWire struct {
	Name           string    `json:"name"`
	Agents         []Agent   `json:"agents"`
	Beads          []Bead    `json:"beads"`
	LastSeenMailTS time.Time `json:"last_seen_mail_ts"`
	LastObservedAt time.Time `json:"last_observed_at"`
}

// MarshalJSON flattens the internal map-keyed fields into slices.
func (r RigState) MarshalJSON() ([]byte, error) {
	w := rigStateWire{
		Name:           r.Name,
		LastSeenMailTS: r.LastSeenMailTS,
		LastObservedAt: r.LastObservedAt,
	}
	for _, a := range r.Agents {
		w.Agents = append(w.Agents, a)
	}
	for _, b := range r.Beads {
		w.Beads = append(w.Beads, b)
	}
	return json.Marshal(w)
}

// MetricsSample is a per-minute aggregate of pipeline health.
type MetricsSample struct {
	Timestamp       time.Time      `json:"timestamp"`
	PollDurationAvg float64        `json:"poll_duration_avg_ms"`
	PollDurationP50 float64        `json:"poll_duration_p50_ms"`
	PollDurationP95 float64        `json:"poll_duration_p95_ms"`
	EventVolume     int            `json:"event_volume"`
	SuccessfulPolls int            `json:"successful_polls"`
	FailedPolls     int            `json:"failed_polls"`
	WSConnections   int            `json:"ws_connections"`
	AgentActivity   AgentActivity  `json:"agent_activity"`
	HealthScore     float64        `json:"health_score"`
}

// AgentActivity buckets the agent population by status at sample time.
type AgentActivity struct {
	Active int `json:"active"`
	Hooked int `json:"hooked"`
	Idle   int `json:"idle"`
	Error  int `json:"error"`
}
