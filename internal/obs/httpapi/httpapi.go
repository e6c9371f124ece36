// Package httpapi implements the REST surface (C10): stateless handlers
// reading from the pipeline's stores. Grounded on internal/web.APIHandler's
// switch-based path router, CORS headers, and sendError convention,
// generalized from a single gt-command proxy to the full stores surface.
package httpapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gastown/gt/internal/obs"
	"github.com/gastown/gt/internal/obs/alerts"
	"github.com/gastown/gt/internal/obs/diff"
	"github.com/gastown/gt/internal/obs/history"
	"github.com/gastown/gt/internal/obs/invoker"
	"github.com/gastown/gt/internal/obs/model"
	"github.com/gastown/gt/internal/obs/rules"
)

const requestTimeout = 10 * time.Second

// Handler serves the /api/* and /health routes.
type Handler struct {
	Engine  *diff.Engine
	History *history.Store
	Rules   *rules.Engine
	Alerts  *alerts.Store
	Invoker *invoker.Invoker
}

// ServeHTTP routes requests the way internal/web.APIHandler does: CORS
// headers on every response, a path-prefix switch, OPTIONS short-circuited.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	r = r.WithContext(ctx)

	path := r.URL.Path
	switch {
	case path == "/health":
		h.handleHealth(w, r)
	case path == "/api/state" && r.Method == http.MethodGet:
		h.handleState(w, r)
	case path == "/api/timeline/events/all" && r.Method == http.MethodGet:
		h.handleTimelineEventsAll(w, r)
	case path == "/api/timeline/events" && r.Method == http.MethodGet:
		h.handleTimelineEvents(w, r)
	case path == "/api/metrics/history" && r.Method == http.MethodGet:
		h.handleMetricsHistory(w, r)
	case path == "/api/metrics/summary" && r.Method == http.MethodGet:
		h.handleMetricsSummary(w, r)
	case path == "/api/rules" && r.Method == http.MethodGet:
		h.handleRulesList(w, r)
	case path == "/api/rules" && r.Method == http.MethodPost:
		h.handleRuleUpsert(w, r)
	case strings.HasPrefix(path, "/api/rules/") && strings.HasSuffix(path, "/toggle") && r.Method == http.MethodPost:
		h.handleRuleToggle(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/api/rules/"), "/toggle"))
	case path == "/api/rules/test" && r.Method == http.MethodPost:
		h.handleRuleTest(w, r)
	case strings.HasPrefix(path, "/api/rules/") && r.Method == http.MethodPut:
		h.handleRuleUpsert(w, r)
	case strings.HasPrefix(path, "/api/rules/") && r.Method == http.MethodDelete:
		h.handleRuleDelete(w, r, strings.TrimPrefix(path, "/api/rules/"))
	case path == "/api/alerts" && r.Method == http.MethodGet:
		h.handleAlertsList(w, r)
	case strings.HasPrefix(path, "/api/alerts/") && strings.HasSuffix(path, "/acknowledge") && r.Method == http.MethodPost:
		h.handleAlertAck(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/api/alerts/"), "/acknowledge"))
	case strings.HasPrefix(path, "/api/alerts/") && strings.HasSuffix(path, "/resolve") && r.Method == http.MethodPost:
		h.handleAlertResolve(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/api/alerts/"), "/resolve"))
	case strings.HasPrefix(path, "/api/alerts/") && r.Method == http.MethodDelete:
		h.handleAlertDelete(w, r, strings.TrimPrefix(path, "/api/alerts/"))
	case path == "/api/events/export" && r.Method == http.MethodGet:
		h.handleEventsExport(w, r)
	case strings.HasPrefix(path, "/api/agents/") && strings.HasSuffix(path, "/peek") && r.Method == http.MethodGet:
		h.handleAgentPeek(w, r, path)
	case strings.HasPrefix(path, "/api/beads/") && strings.HasSuffix(path, "/history") && r.Method == http.MethodGet:
		h.handleBeadHistory(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/api/beads/"), "/history"))
	default:
		h.sendError(w, obs.ErrNotFound.WithDetail(path), http.StatusNotFound)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": err.Error()},
	})
}

func (h *Handler) sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	obsErr, ok := err.(*obs.Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch obsErr.Kind {
	case obs.KindNotFound:
		return http.StatusNotFound
	case obs.KindBadRequest, obs.KindInvalidName:
		return http.StatusBadRequest
	case obs.KindConflict:
		return http.StatusConflict
	case obs.KindOutOfHistory:
		return http.StatusGone
	case obs.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	rigs := h.Engine.Rigs()
	states := make(map[string]model.RigState, len(rigs))
	for _, rig := range rigs {
		states[rig] = h.Engine.State(rig)
	}
	h.sendJSON(w, map[string]interface{}{"rigs": states})
}

func (h *Handler) handleTimelineEventsAll(w http.ResponseWriter, r *http.Request) {
	min, max, ok := h.History.Bounds()
	if !ok {
		h.sendJSON(w, map[string]interface{}{"events": []model.Event{}, "bounds": nil})
		return
	}
	events := h.History.EventsBetween(min, max, nil)
	h.sendJSON(w, map[string]interface{}{
		"events": events,
		"bounds": map[string]time.Time{"start": min, "end": max},
	})
}

func (h *Handler) handleTimelineEvents(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		h.sendError(w, err, http.StatusBadRequest)
		return
	}
	typeFilter := model.EventType(r.URL.Query().Get("type"))
	var filter func(model.Event) bool
	if typeFilter != "" {
		filter = func(ev model.Event) bool { return ev.Type == typeFilter }
	}
	h.sendJSON(w, h.History.EventsBetween(start, end, filter))
}

func (h *Handler) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		h.sendError(w, err, http.StatusBadRequest)
		return
	}
	var out []model.MetricsSample
	for _, m := range h.History.Metrics() {
		if !m.Timestamp.Before(start) && !m.Timestamp.After(end) {
			out = append(out, m)
		}
	}
	h.sendJSON(w, out)
}

func (h *Handler) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		h.sendError(w, err, http.StatusBadRequest)
		return
	}
	var avg, p95 float64
	n := 0
	for _, m := range h.History.Metrics() {
		if m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		avg += m.PollDurationAvg
		if m.PollDurationP95 > p95 {
			p95 = m.PollDurationP95
		}
		n++
	}
	if n > 0 {
		avg /= float64(n)
	}
	h.sendJSON(w, map[string]float64{"poll_duration_avg_ms": avg, "poll_duration_p95_ms": p95})
}

func (h *Handler) handleRulesList(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.Rules.List())
}

func (h *Handler) handleRuleUpsert(w http.ResponseWriter, r *http.Request) {
	var rule model.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.sendError(w, obs.ErrBadRequest.WithDetail(err.Error()), http.StatusBadRequest)
		return
	}
	if err := h.Rules.Upsert(rule); err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	h.sendJSON(w, rule)
}

func (h *Handler) handleRuleToggle(w http.ResponseWriter, r *http.Request, id string) {
	rule, err := h.Rules.Get(id)
	if err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	rule.Enabled = !rule.Enabled
	if err := h.Rules.Upsert(rule); err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	h.sendJSON(w, rule)
}

func (h *Handler) handleRuleTest(w http.ResponseWriter, r *http.Request) {
	var rule model.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.sendError(w, obs.ErrBadRequest.WithDetail(err.Error()), http.StatusBadRequest)
		return
	}
	if !model.IsKnownConditionType(rule.Condition.Type) {
		h.sendError(w, obs.ErrBadRequest.WithDetail("unknown condition type"), http.StatusBadRequest)
		return
	}
	h.sendJSON(w, map[string]bool{"valid": true})
}

func (h *Handler) handleRuleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Rules.Delete(id); err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAlertsList(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.Alerts.List())
}

func (h *Handler) handleAlertAck(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Alerts.Acknowledge(id, time.Now()); err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAlertResolve(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Alerts.Resolve(id, time.Now()); err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAlertDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Alerts.Delete(id); err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEventsExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "json"
	}
	min, max, ok := h.History.Bounds()
	if !ok {
		min, max = time.Now(), time.Now()
	}
	rig := q.Get("rig")
	typeFilter := model.EventType(q.Get("type"))
	search := strings.ToLower(q.Get("search"))

	events := h.History.EventsBetween(min, max, func(ev model.Event) bool {
		if rig != "" && ev.Rig != rig {
			return false
		}
		if typeFilter != "" && ev.Type != typeFilter {
			return false
		}
		if search != "" && !strings.Contains(strings.ToLower(ev.Message), search) {
			return false
		}
		return true
	})

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		cw := csv.NewWriter(w)
		cw.Write([]string{"timestamp", "type", "rig", "agent", "message"})
		for _, ev := range events {
			cw.Write([]string{ev.Timestamp.Format(time.RFC3339), string(ev.Type), ev.Rig, ev.Agent, ev.Message})
		}
		cw.Flush()
		return
	}
	h.sendJSON(w, events)
}

func (h *Handler) handleAgentPeek(w http.ResponseWriter, r *http.Request, path string) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, "/api/agents/"), "/peek")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 3 {
		h.sendError(w, obs.ErrBadRequest.WithDetail("expected /api/agents/:rig/:role/:name/peek"), http.StatusBadRequest)
		return
	}
	rig, role, name := parts[0], parts[1], parts[2]
	if err := invoker.ValidateIdentifier(rig); err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	if err := invoker.ValidateIdentifier(name); err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	out, err := h.Invoker.InvokeJSON(r.Context(), "polecat", []string{"status", rig + "/" + name})
	if err != nil {
		h.sendError(w, err, statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Agent-Role", role)
	w.Write(out)
}

// handleBeadHistory serves a bead's recorded status transitions, the data
// source behind the CLI's "replay" mode — a thin wrapper over the history
// store, same as timeline:getState.
func (h *Handler) handleBeadHistory(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		h.sendError(w, obs.ErrBadRequest.WithDetail("missing bead id"), http.StatusBadRequest)
		return
	}
	h.sendJSON(w, h.History.BeadHistory(id))
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		return time.Time{}, time.Time{}, obs.ErrBadRequest.WithDetail("invalid start: " + err.Error())
	}
	end, err := parseTimeParam(q.Get("end"))
	if err != nil {
		return time.Time{}, time.Time{}, obs.ErrBadRequest.WithDetail("invalid end: " + err.Error())
	}
	if end.IsZero() {
		end = time.Now()
	}
	return start, end, nil
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if unixSeconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unixSeconds, 0), nil
	}
	return time.Parse(time.RFC3339, s)
}
