package server

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gastown/gt/internal/obs/model"
)

const meterName = "github.com/gastown/gt/observe"

// serverMetrics holds OTel instruments for the observability server itself,
// additive to the in-process MetricsSample ring that stateAt and
// /api/metrics/* depend on (§6.6: this is supplementary export, not a
// replacement). All methods are nil-safe so callers don't need to guard
// against telemetry being disabled.
type serverMetrics struct {
	eventsTotal     metric.Int64Counter
	alertsTotal     metric.Int64Counter
	pollErrorsTotal metric.Int64Counter

	gaugeMu         sync.RWMutex
	wsConnections   int64
	healthScore     float64
	pollDurationMs  float64
	eventVolume     int64
	agentActive     int64
	agentIdle       int64
	agentError      int64
	agentHooked     int64
}

// newServerMetrics registers the server's OTel instruments against the
// global MeterProvider. Safe to call even when telemetry is disabled: the
// no-op MeterProvider returns working no-op instruments.
func newServerMetrics() (*serverMetrics, error) {
	m := otel.GetMeterProvider().Meter(meterName)
	sm := &serverMetrics{}

	var err error
	sm.eventsTotal, err = m.Int64Counter("gastown.observe.events.total",
		metric.WithDescription("Total derived fleet events, labeled by type"),
	)
	if err != nil {
		return nil, err
	}

	sm.alertsTotal, err = m.Int64Counter("gastown.observe.alerts.total",
		metric.WithDescription("Total alerts fired, labeled by severity"),
	)
	if err != nil {
		return nil, err
	}

	sm.pollErrorsTotal, err = m.Int64Counter("gastown.observe.poll_errors.total",
		metric.WithDescription("Total rig poll failures"),
	)
	if err != nil {
		return nil, err
	}

	wsGauge, err := m.Int64ObservableGauge("gastown.observe.ws_connections",
		metric.WithDescription("Currently connected dashboard WebSocket sessions"),
	)
	if err != nil {
		return nil, err
	}

	healthGauge, err := m.Float64ObservableGauge("gastown.observe.health_score",
		metric.WithDescription("Fleet-wide health score in [0,1], 1 = no agent errors"),
	)
	if err != nil {
		return nil, err
	}

	pollDurationGauge, err := m.Float64ObservableGauge("poll_duration_ms",
		metric.WithDescription("Most recent rig poll round-trip latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	eventVolumeGauge, err := m.Int64ObservableGauge("event_volume",
		metric.WithDescription("Derived fleet events in the most recent per-minute sampling window"),
	)
	if err != nil {
		return nil, err
	}

	agentActivityGauge, err := m.Int64ObservableGauge("agent_activity",
		metric.WithDescription("Agent counts by activity state, labeled by state"),
	)
	if err != nil {
		return nil, err
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		sm.gaugeMu.RLock()
		defer sm.gaugeMu.RUnlock()
		o.ObserveInt64(wsGauge, sm.wsConnections)
		o.ObserveFloat64(healthGauge, sm.healthScore)
		o.ObserveFloat64(pollDurationGauge, sm.pollDurationMs)
		o.ObserveInt64(eventVolumeGauge, sm.eventVolume)
		o.ObserveInt64(agentActivityGauge, sm.agentActive, metric.WithAttributes(attribute.String("state", "active")))
		o.ObserveInt64(agentActivityGauge, sm.agentIdle, metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(agentActivityGauge, sm.agentError, metric.WithAttributes(attribute.String("state", "error")))
		o.ObserveInt64(agentActivityGauge, sm.agentHooked, metric.WithAttributes(attribute.String("state", "hooked")))
		return nil
	}, wsGauge, healthGauge, pollDurationGauge, eventVolumeGauge, agentActivityGauge)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

func (sm *serverMetrics) recordEvent(ctx context.Context, eventType string) {
	if sm == nil {
		return
	}
	sm.eventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

func (sm *serverMetrics) recordAlert(ctx context.Context, severity string) {
	if sm == nil {
		return
	}
	sm.alertsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}

func (sm *serverMetrics) recordPollError(ctx context.Context, rig string) {
	if sm == nil {
		return
	}
	sm.pollErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("rig", rig)))
}

func (sm *serverMetrics) updateGauges(wsConnections int, healthScore float64, activity model.AgentActivity) {
	if sm == nil {
		return
	}
	sm.gaugeMu.Lock()
	defer sm.gaugeMu.Unlock()
	sm.wsConnections = int64(wsConnections)
	sm.healthScore = healthScore
	sm.agentActive = int64(activity.Active)
	sm.agentIdle = int64(activity.Idle)
	sm.agentError = int64(activity.Error)
	sm.agentHooked = int64(activity.Hooked)
}

// recordPollDuration stores the latest rig poll round-trip latency.
func (sm *serverMetrics) recordPollDuration(ms float64) {
	if sm == nil {
		return
	}
	sm.gaugeMu.Lock()
	defer sm.gaugeMu.Unlock()
	sm.pollDurationMs = ms
}

// recordEventVolume stores the event count observed in the most recent
// per-minute sampling window.
func (sm *serverMetrics) recordEventVolume(n int64) {
	if sm == nil {
		return
	}
	sm.gaugeMu.Lock()
	defer sm.gaugeMu.Unlock()
	sm.eventVolume = n
}
