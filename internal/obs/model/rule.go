package model

import "time"

// ConditionType discriminates the closed set of rule condition variants.
// Unknown condition types are rejected as ErrBadRequest at the CRUD
// boundary rather than accepted as a free-form dictionary — see spec §9.
type ConditionType string

const (
	ConditionAgentStatus    ConditionType = "agent_status"
	ConditionBeadStatus     ConditionType = "bead_status"
	ConditionBeadDuration   ConditionType = "bead_duration"
	ConditionMetricThreshold ConditionType = "metric_threshold"
	ConditionErrorCount     ConditionType = "error_count"
	ConditionEventPattern   ConditionType = "event_pattern"
)

// MetricOperator is a comparison operator for metric_threshold conditions.
type MetricOperator string

const (
	OpLT MetricOperator = "<"
	OpLE MetricOperator = "<="
	OpGT MetricOperator = ">"
	OpGE MetricOperator = ">="
	OpEQ MetricOperator = "=="
	OpNE MetricOperator = "!="
)

// Condition is the closed discriminated union of rule conditions.
// Unused fields for a given Type are zero.
type Condition struct {
	Type ConditionType `json:"type"`

	// agent_status
	Agent string      `json:"agent,omitempty"`
	Rig   string      `json:"rig,omitempty"`
	From  AgentStatus `json:"from,omitempty"`
	To    AgentStatus `json:"to,omitempty"`

	// bead_status (reuses Rig above)
	Bead     string     `json:"bead,omitempty"`
	FromBead BeadStatus `json:"from_bead,omitempty"`
	ToBead   BeadStatus `json:"to_bead,omitempty"`
	Priority string     `json:"priority,omitempty"`

	// bead_duration (reuses Rig, ToBead as the status-to-watch)
	Status      BeadStatus    `json:"status,omitempty"`
	DurationMs  int64         `json:"duration_ms,omitempty"`

	// metric_threshold
	MetricPath string         `json:"metric_path,omitempty"`
	Operator   MetricOperator `json:"operator,omitempty"`
	Threshold  float64        `json:"threshold,omitempty"`

	// error_count (reuses Agent, Rig)
	Count    int   `json:"count,omitempty"`
	WindowMs int64 `json:"window_ms,omitempty"`

	// event_pattern (reuses Agent as "source" glob)
	EventType string   `json:"event_type,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Level     Severity `json:"level,omitempty"`
}

// knownConditionTypes is the closed set accepted by rule CRUD.
var knownConditionTypes = map[ConditionType]bool{
	ConditionAgentStatus:     true,
	ConditionBeadStatus:      true,
	ConditionBeadDuration:    true,
	ConditionMetricThreshold: true,
	ConditionErrorCount:      true,
	ConditionEventPattern:    true,
}

// IsKnownConditionType reports whether t is a recognized condition variant.
func IsKnownConditionType(t ConditionType) bool {
	return knownConditionTypes[t]
}

// ActionType identifies a rule action.
type ActionType string

const (
	ActionToast   ActionType = "toast"
	ActionLog     ActionType = "log"
	ActionWebhook ActionType = "webhook"
)

// Action is one dispatch target fired when a rule matches.
type Action struct {
	Type     ActionType `json:"type"`
	URL      string     `json:"url,omitempty"`
	Method   string     `json:"method,omitempty"`
	Level    Severity   `json:"level,omitempty"`
}

// Rule is a user-defined alert condition with cooldown and actions.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CooldownMs  int64     `json:"cooldown_ms"`
	Condition   Condition `json:"condition"`
	Actions     []Action  `json:"actions"`
	LastFiredAt time.Time `json:"last_fired_at,omitempty"`
}
