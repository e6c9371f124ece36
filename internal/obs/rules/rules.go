// Package rules implements the rule engine (C7): condition matching against
// the event stream and metric samples, cooldown-gated action dispatch, and
// atomic-file-backed CRUD. Grounded on internal/ratelimit.CooldownStore for
// the cooldown map shape and internal/util.Retry for webhook dispatch
// backoff.
package rules

import (
	"bytes"
	"context"
	"net/http"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gastown/gt/internal/obs"
	"github.com/gastown/gt/internal/obs/model"
	"github.com/gastown/gt/internal/util"
)

// Dispatcher sends a matched rule's actions somewhere observable: a toast
// queued for connected clients, a log line, or an outbound webhook.
type Dispatcher interface {
	Toast(rule model.Rule, action model.Action, ev model.Event)
	Log(rule model.Rule, action model.Action, ev model.Event)
	Webhook(ctx context.Context, rule model.Rule, action model.Action, ev model.Event) error
}

// Store persists the rule set to disk, matching the spec's requirement that
// rule CRUD survive a restart.
type Store interface {
	Load() ([]model.Rule, error)
	Save([]model.Rule) error
}

// Engine evaluates conditions against the live event stream and a 10s
// metric/duration tick, and dispatches actions for rules outside cooldown.
type Engine struct {
	mu    sync.RWMutex
	rules map[string]*model.Rule

	store      Store
	dispatcher Dispatcher

	errWindow map[string][]time.Time // rule ID -> recent matching error timestamps
}

// New returns an Engine backed by store, loading any persisted rules.
func New(store Store, dispatcher Dispatcher) (*Engine, error) {
	e := &Engine{
		rules:      make(map[string]*model.Rule),
		store:      store,
		dispatcher: dispatcher,
		errWindow:  make(map[string][]time.Time),
	}
	loaded, err := store.Load()
	if err != nil {
		return nil, err
	}
	for i := range loaded {
		r := loaded[i]
		e.rules[r.ID] = &r
	}
	return e, nil
}

// List returns a snapshot of every rule, sorted by ID for stable output.
func (e *Engine) List() []model.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// Get returns the rule with id, or ErrNotFound.
func (e *Engine) Get(id string) (model.Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	if !ok {
		return model.Rule{}, obs.ErrNotFound.WithDetail(id)
	}
	return *r, nil
}

// Upsert validates and persists rule, rejecting unknown condition types.
func (e *Engine) Upsert(rule model.Rule) error {
	if !model.IsKnownConditionType(rule.Condition.Type) {
		return obs.ErrBadRequest.WithDetail("unknown condition type: " + string(rule.Condition.Type))
	}
	e.mu.Lock()
	e.rules[rule.ID] = &rule
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	return e.store.Save(snapshot)
}

// Delete removes a rule by id.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	if _, ok := e.rules[id]; !ok {
		e.mu.Unlock()
		return obs.ErrNotFound.WithDetail(id)
	}
	delete(e.rules, id)
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	return e.store.Save(snapshot)
}

func (e *Engine) snapshotLocked() []model.Rule {
	out := make([]model.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// EvaluateEvent matches event-driven condition types (all but
// bead_duration and metric_threshold, which run on the secondary tick) and
// dispatches actions for every rule outside cooldown.
func (e *Engine) EvaluateEvent(ctx context.Context, ev model.Event) {
	e.mu.Lock()
	var toFire []*model.Rule
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		if !matchesEvent(r.Condition, ev, e.errWindow, r.ID, now) {
			continue
		}
		if e.inCooldownLocked(r, now) {
			continue
		}
		r.LastFiredAt = now
		toFire = append(toFire, r)
	}
	e.mu.Unlock()

	for _, r := range toFire {
		e.dispatch(ctx, *r, ev)
	}
}

// EvaluateTick runs the secondary 10s conditions: bead_duration against the
// live agent/bead world model, metric_threshold against the latest sample.
func (e *Engine) EvaluateTick(ctx context.Context, beads map[string]model.Bead, sample model.MetricsSample) {
	now := time.Now()
	e.mu.Lock()
	var toFire []*model.Rule
	var firedCtx []model.Event
	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		var matched bool
		var ctxEvent model.Event
		switch r.Condition.Type {
		case model.ConditionBeadDuration:
			matched, ctxEvent = matchBeadDuration(r.Condition, beads, now)
		case model.ConditionMetricThreshold:
			matched, ctxEvent = matchMetricThreshold(r.Condition, sample)
		default:
			continue
		}
		if !matched || e.inCooldownLocked(r, now) {
			continue
		}
		r.LastFiredAt = now
		toFire = append(toFire, r)
		firedCtx = append(firedCtx, ctxEvent)
	}
	e.mu.Unlock()

	for i, r := range toFire {
		e.dispatch(ctx, *r, firedCtx[i])
	}
}

func (e *Engine) inCooldownLocked(r *model.Rule, now time.Time) bool {
	if r.LastFiredAt.IsZero() || r.CooldownMs <= 0 {
		return false
	}
	return now.Sub(r.LastFiredAt) < time.Duration(r.CooldownMs)*time.Millisecond
}

func (e *Engine) dispatch(ctx context.Context, r model.Rule, ev model.Event) {
	for _, action := range r.Actions {
		switch action.Type {
		case model.ActionToast:
			e.dispatcher.Toast(r, action, ev)
		case model.ActionLog:
			e.dispatcher.Log(r, action, ev)
		case model.ActionWebhook:
			_, _ = util.Retry(ctx, util.DefaultRetryConfig(), func() (struct{}, error) {
				return struct{}{}, e.dispatcher.Webhook(ctx, r, action, ev)
			})
		}
	}
}

// matchesEvent evaluates the event-driven condition types against ev.
func matchesEvent(c model.Condition, ev model.Event, errWindow map[string][]time.Time, ruleID string, now time.Time) bool {
	switch c.Type {
	case model.ConditionAgentStatus:
		return ev.Type == model.EventAgentStatusChange &&
			globMatch(c.Agent, ev.Agent) && globMatch(c.Rig, ev.Rig) &&
			(c.From == "" || c.From == ev.From) && (c.To == "" || c.To == ev.To)

	case model.ConditionBeadStatus:
		return ev.Type == model.EventBeadStatusChange &&
			globMatch(c.Bead, ev.BeadID) && globMatch(c.Rig, ev.Rig) &&
			(c.FromBead == "" || c.FromBead == ev.FromStatus) && (c.ToBead == "" || c.ToBead == ev.ToStatus)

	case model.ConditionErrorCount:
		if ev.Type != model.EventError || !globMatch(c.Agent, ev.Agent) || !globMatch(c.Rig, ev.Rig) {
			return false
		}
		window := append(errWindow[ruleID], now)
		cutoff := now.Add(-time.Duration(c.WindowMs) * time.Millisecond)
		kept := window[:0]
		for _, ts := range window {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		errWindow[ruleID] = kept
		return len(kept) >= c.Count

	case model.ConditionEventPattern:
		if string(ev.Type) != c.EventType && c.EventType != "" {
			return false
		}
		if !globMatch(c.Agent, ev.Source) {
			return false
		}
		if c.Level != "" && c.Level != ev.Severity {
			return false
		}
		if c.Pattern == "" {
			return true
		}
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(ev.Message)

	default:
		return false
	}
}

func matchBeadDuration(c model.Condition, beads map[string]model.Bead, now time.Time) (bool, model.Event) {
	threshold := time.Duration(c.DurationMs) * time.Millisecond
	for _, b := range beads {
		if b.Status != c.Status {
			continue
		}
		var since time.Time
		for i := len(b.StatusHistory) - 1; i >= 0; i-- {
			if b.StatusHistory[i].Status == c.Status {
				since = b.StatusHistory[i].Timestamp
				break
			}
		}
		if since.IsZero() {
			continue
		}
		if now.Sub(since) >= threshold {
			return true, model.Event{
				Type: model.EventBeadStatusChange, BeadID: b.ID, ToStatus: b.Status, Timestamp: now,
			}
		}
	}
	return false, model.Event{}
}

func matchMetricThreshold(c model.Condition, sample model.MetricsSample) (bool, model.Event) {
	val, ok := metricValue(sample, c.MetricPath)
	if !ok {
		return false, model.Event{}
	}
	var matched bool
	switch c.Operator {
	case model.OpLT:
		matched = val < c.Threshold
	case model.OpLE:
		matched = val <= c.Threshold
	case model.OpGT:
		matched = val > c.Threshold
	case model.OpGE:
		matched = val >= c.Threshold
	case model.OpEQ:
		matched = val == c.Threshold
	case model.OpNE:
		matched = val != c.Threshold
	}
	return matched, model.Event{Type: model.EventLog, Timestamp: sample.Timestamp, Message: c.MetricPath}
}

func metricValue(sample model.MetricsSample, metricPath string) (float64, bool) {
	switch metricPath {
	case "poll_duration_avg_ms":
		return sample.PollDurationAvg, true
	case "poll_duration_p50_ms":
		return sample.PollDurationP50, true
	case "poll_duration_p95_ms":
		return sample.PollDurationP95, true
	case "event_volume":
		return float64(sample.EventVolume), true
	case "ws_connections":
		return float64(sample.WSConnections), true
	case "health_score":
		return sample.HealthScore, true
	default:
		return 0, false
	}
}

// globMatch reports whether pattern matches name using path.Match glob
// syntax; an empty pattern means "any", matching the spec's optional-field
// convention.
func globMatch(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// HTTPWebhookDispatcher posts action.URL with the firing event as JSON
// body, grounded on internal/slack.Client's plain net/http POST pattern.
type HTTPWebhookDispatcher struct {
	Client  *http.Client
	Toaster func(rule model.Rule, action model.Action, ev model.Event)
	Logger  func(rule model.Rule, action model.Action, ev model.Event)
}

func (d *HTTPWebhookDispatcher) Toast(rule model.Rule, action model.Action, ev model.Event) {
	if d.Toaster != nil {
		d.Toaster(rule, action, ev)
	}
}

func (d *HTTPWebhookDispatcher) Log(rule model.Rule, action model.Action, ev model.Event) {
	if d.Logger != nil {
		d.Logger(rule, action, ev)
	}
}

func (d *HTTPWebhookDispatcher) Webhook(ctx context.Context, rule model.Rule, action model.Action, ev model.Event) error {
	method := action.Method
	if method == "" {
		method = http.MethodPost
	}
	body := []byte(`{"rule":"` + strings.ReplaceAll(rule.Name, `"`, `'`) + `","event_type":"` + string(ev.Type) + `"}`)
	req, err := http.NewRequestWithContext(ctx, method, action.URL, bytes.NewReader(body))
	if err != nil {
		return util.MarkPermanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return obs.ErrInternal.WithDetail(resp.Status)
	}
	if resp.StatusCode >= 400 {
		return util.MarkPermanent(obs.ErrBadRequest.WithDetail(resp.Status))
	}
	return nil
}
