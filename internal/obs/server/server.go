package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gastown/gt/internal/obs"
	"github.com/gastown/gt/internal/obs/alerts"
	"github.com/gastown/gt/internal/obs/diff"
	"github.com/gastown/gt/internal/obs/history"
	"github.com/gastown/gt/internal/obs/httpapi"
	"github.com/gastown/gt/internal/obs/hub"
	"github.com/gastown/gt/internal/obs/invoker"
	"github.com/gastown/gt/internal/obs/model"
	"github.com/gastown/gt/internal/obs/patterns"
	"github.com/gastown/gt/internal/obs/poller"
	"github.com/gastown/gt/internal/obs/rules"
	"github.com/gastown/gt/internal/telemetry"
)

const secondaryTickInterval = 10 * time.Second

// Server owns every pipeline component's lifecycle: init, serve, shutdown.
// Grounded on internal/cmd.runDashboard's signal-handling + http.Server
// + context-driven graceful shutdown shape, generalized from one static
// dashboard handler to the full C1-C10 wiring.
type Server struct {
	cfg obs.Config

	Invoker    *invoker.Invoker
	Engine     *diff.Engine
	History    *history.Store
	Aggregator *patterns.Aggregator
	Rules      *rules.Engine
	Alerts     *alerts.Store
	Hub        *hub.Hub
	Poller     *poller.Poller

	Metrics           *serverMetrics
	telemetryProvider *telemetry.Provider
	eventsSinceSample int64

	metricsLog *MetricsLog
	httpServer *http.Server
}

// New constructs a Server from cfg, wiring every component together the
// way the data-flow diagram in spec §2 describes: C1 → C2 → C4 → C5/C6/C7
// → C9/C8, with C10 reading from the stores.
func New(cfg obs.Config) (*Server, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	inv := invoker.New(cfg.Invoker.GtPath, "", time.Duration(cfg.Invoker.TimeoutMs)*time.Millisecond)
	engine := diff.New()
	hist := history.New(cfg.History.EventCap, cfg.History.AgentHistCap)
	agg := patterns.New()
	h := hub.New(cfg.Hub.CentralChannelCap, cfg.Hub.SessionQueueSize)

	alertPath := filepath.Join(cfg.StateDir, "alerts.json")
	alertStore := alerts.New(cfg.Alerts.RingSize, func(a []model.Alert) error {
		return saveAlerts(alertPath, a)
	})
	if persisted, err := loadAlerts(alertPath); err == nil {
		alertStore.Load(persisted)
	}

	ruleStore := &rules.FileStore{Path: filepath.Join(cfg.StateDir, "rules.json")}

	s := &Server{
		cfg:        cfg,
		Invoker:    inv,
		Engine:     engine,
		History:    hist,
		Aggregator: agg,
		Alerts:     alertStore,
		Hub:        h,
		metricsLog: NewMetricsLog(cfg.StateDir),
	}

	dispatcher := &rules.HTTPWebhookDispatcher{
		Toaster: s.onRuleToast,
		Logger: func(r model.Rule, a model.Action, ev model.Event) {
			log.Printf("rule %q fired on %s", r.Name, ev.Type)
		},
	}
	ruleEngine, err := rules.New(ruleStore, dispatcher)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	s.Rules = ruleEngine

	snapper := &poller.InvokerSnapshotter{Invoker: inv, Decode: decodeSnapshot()}
	sink := make(chan poller.Result, 256)
	s.Poller = poller.New(snapper, sink, cfg.Poll.Workers, time.Duration(cfg.Poll.BaseIntervalMs)*time.Millisecond)
	go s.consume(sink)

	h.OnPollNow(func(rig string) {
		if rig == "" {
			for _, r := range s.Engine.Rigs() {
				s.Poller.PokeNow(r)
			}
			return
		}
		s.Poller.PokeNow(rig)
	})
	h.OnGetState(func(rig string, timestamp time.Time) (interface{}, error) {
		return s.History.StateAt(rig, timestamp)
	})
	h.OnInitial(s.buildInitial)

	return s, nil
}

// onRuleToast fires a persisted Alert and publishes it to every connected
// session, the "toast" action's effect per the rule engine's dispatch
// table.
func (s *Server) onRuleToast(r model.Rule, a model.Action, ev model.Event) {
	alert := model.Alert{
		ID:        uuid.NewString(),
		RuleID:    r.ID,
		RuleName:  r.Name,
		Severity:  severityFor(a.Level),
		Timestamp: time.Now(),
		Context:   ev,
	}
	if err := s.Alerts.Fire(alert); err != nil {
		log.Printf("server: firing alert for rule %q: %v", r.Name, err)
		return
	}
	s.Metrics.recordAlert(context.Background(), string(alert.Severity))
	s.Hub.PublishAlert(ev.Rig, alert)
}

func severityFor(level model.Severity) model.AlertSeverity {
	switch level {
	case model.SeverityError:
		return model.AlertCritical
	case model.SeverityWarning:
		return model.AlertWarning
	default:
		return model.AlertInfo
	}
}

func (s *Server) buildInitial() hub.InitialData {
	data := hub.InitialData{}
	for _, rig := range s.Engine.Rigs() {
		data.Rigs = append(data.Rigs, rig)
		state := s.Engine.State(rig)
		for _, a := range state.Agents {
			data.Agents = append(data.Agents, a)
		}
		for _, b := range state.Beads {
			data.Beads = append(data.Beads, b)
		}
	}
	data.Metrics = s.History.Metrics()
	return data
}

// Serve starts watching every known rig and blocks serving HTTP until ctx
// is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.initTelemetry(ctx)

	rigs, err := s.discoverRigs(ctx)
	if err != nil {
		log.Printf("server: initial rig discovery failed: %v", err)
	}
	for _, rig := range rigs {
		s.Poller.Watch(ctx, rig)
	}

	go s.secondaryTickLoop(ctx)
	go s.metricSampleLoop(ctx)

	mux := http.NewServeMux()
	apiHandler := &httpapi.Handler{Engine: s.Engine, History: s.History, Rules: s.Rules, Alerts: s.Alerts, Invoker: s.Invoker}
	mux.Handle("/health", apiHandler)
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.Hub.Upgrade(w, r, r.URL.Query().Get("username"), r.URL.Query().Get("color"))
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("observability server listening on %s", s.httpServer.Addr)
	err = s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops every poll loop, closes the metrics log, and flushes any
// pending OTel export.
func (s *Server) Shutdown() {
	s.Poller.Stop()
	s.metricsLog.Close()
	if s.telemetryProvider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: telemetry shutdown: %v", err)
		}
	}
}

// initTelemetry enables OTLP export when cfg.Telemetry.Enabled is set,
// adapting the config-file toggle to telemetry.Init's env-var contract, and
// registers this server's own metric instruments against whatever
// MeterProvider results (the real one if enabled, the SDK's no-op
// otherwise).
func (s *Server) initTelemetry(ctx context.Context) {
	if s.cfg.Telemetry.Enabled && s.cfg.Telemetry.OTLPEndpoint != "" {
		os.Setenv(telemetry.EnvMetricsURL, s.cfg.Telemetry.OTLPEndpoint)
		provider, err := telemetry.Init(ctx, "gt-observe", "1")
		if err != nil {
			log.Printf("server: telemetry init failed, continuing without it: %v", err)
		} else {
			s.telemetryProvider = provider
		}
	}

	metrics, err := newServerMetrics()
	if err != nil {
		log.Printf("server: registering metrics instruments: %v", err)
		return
	}
	s.Metrics = metrics
}

func (s *Server) discoverRigs(ctx context.Context) ([]string, error) {
	raw, err := s.Invoker.Invoke(ctx, "rig", []string{"ls"})
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(string(raw)), nil
}

func (s *Server) consume(sink <-chan poller.Result) {
	for res := range sink {
		if res.Err != nil {
			ev := model.Event{Type: model.EventError, Rig: res.Rig, Timestamp: time.Now(), Severity: model.SeverityWarning, Message: res.Err.Error()}
			s.History.Record(ev)
			s.Hub.Publish(res.Rig, ev)
			s.Aggregator.Observe(ev)
			s.Metrics.recordPollError(context.Background(), res.Rig)
			continue
		}
		s.History.RecordSnapshot(res.Snapshot)
		s.Metrics.recordPollDuration(float64(res.Snapshot.DurationMs))
		events := s.Engine.Apply(res.Snapshot)
		for _, ev := range events {
			s.History.Record(ev)
			s.Hub.Publish(ev.Rig, ev)
			s.Rules.EvaluateEvent(context.Background(), ev)
			s.Metrics.recordEvent(context.Background(), string(ev.Type))
			atomic.AddInt64(&s.eventsSinceSample, 1)
			if ev.Type == model.EventLog || ev.Type == model.EventError {
				s.Aggregator.Observe(ev)
			}
		}
	}
}

func (s *Server) secondaryTickLoop(ctx context.Context) {
	ticker := time.NewTicker(secondaryTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beads := s.collectBeads()
			sample := s.latestSample()
			s.Rules.EvaluateTick(ctx, beads, sample)
		}
	}
}

func (s *Server) collectBeads() map[string]model.Bead {
	out := make(map[string]model.Bead)
	for _, rig := range s.Engine.Rigs() {
		state := s.Engine.State(rig)
		for id, b := range state.Beads {
			out[id] = b
		}
	}
	return out
}

func (s *Server) latestSample() model.MetricsSample {
	samples := s.History.Metrics()
	if len(samples) == 0 {
		return model.MetricsSample{Timestamp: time.Now()}
	}
	return samples[len(samples)-1]
}

func (s *Server) metricSampleLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := s.buildSample()
			s.History.RecordMetricSample(sample)
			if err := s.metricsLog.Append(sample); err != nil {
				log.Printf("server: writing metrics sample: %v", err)
			}
		}
	}
}

func (s *Server) buildSample() model.MetricsSample {
	var activity model.AgentActivity
	for _, rig := range s.Engine.Rigs() {
		state := s.Engine.State(rig)
		for _, a := range state.Agents {
			switch a.Status {
			case model.StatusRunning:
				activity.Active++
			case model.StatusIdle:
				activity.Idle++
			case model.StatusError:
				activity.Error++
			}
			if a.HookBeadID != "" {
				activity.Hooked++
			}
		}
	}
	sample := model.MetricsSample{
		Timestamp:     time.Now(),
		WSConnections: len(s.Hub.Sessions()),
		AgentActivity: activity,
		HealthScore:   healthScore(activity),
	}
	s.Metrics.updateGauges(sample.WSConnections, sample.HealthScore, activity)
	s.Metrics.recordEventVolume(atomic.SwapInt64(&s.eventsSinceSample, 0))
	return sample
}

func healthScore(a model.AgentActivity) float64 {
	total := a.Active + a.Hooked + a.Idle + a.Error
	if total == 0 {
		return 1.0
	}
	return float64(total-a.Error) / float64(total)
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				line := s[start:i]
				if line != "" {
					out = append(out, line)
				}
			}
			start = i + 1
		}
	}
	sort.Strings(out)
	return out
}
