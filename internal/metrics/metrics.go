// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dokzlo13/streamlights/internal/applicator"
)

// Drop reasons
const (
	DropUnknown     = "unknown_kind"
	DropDecodeError = "decode_error"
	DropQueueFull   = "queue_full"
	DropQueueClosed = "queue_closed"
	DropShutdown    = "shutdown"
)

// Metrics holds all pipeline collectors
type Metrics struct {
	Registry *prometheus.Registry

	PayloadsReceived prometheus.Counter
	EventsQueued     *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	EffectsApplied   *prometheus.CounterVec
	EffectErrors     *prometheus.CounterVec
	LightCommands    *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	PipelineState    prometheus.Gauge
	TransportUp      prometheus.Gauge
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		PayloadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamlights_payloads_received_total",
			Help: "Raw payloads delivered by the transport",
		}),
		EventsQueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamlights_events_queued_total",
			Help: "Events accepted into the pipeline queue",
		}, []string{"kind"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamlights_events_dropped_total",
			Help: "Payloads or events dropped before an effect was applied",
		}, []string{"reason"}),
		EffectsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamlights_effects_applied_total",
			Help: "Effects shown and reset",
		}, []string{"kind"}),
		EffectErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamlights_effect_errors_total",
			Help: "Effects that failed before the reset completed",
		}, []string{"kind"}),
		LightCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamlights_light_commands_total",
			Help: "Per-light commands by phase and result",
		}, []string{"phase", "result"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamlights_queue_depth",
			Help: "Events waiting in the pipeline queue",
		}),
		PipelineState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamlights_pipeline_state",
			Help: "Pipeline state: 0 starting, 1 running, 2 draining, 3 stopped",
		}),
		TransportUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamlights_transport_connected",
			Help: "1 while the event transport is connected",
		}),
	}
}

// LightCommand implements applicator.Observer
func (m *Metrics) LightCommand(phase applicator.Phase, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LightCommands.WithLabelValues(string(phase), result).Inc()
}

// Dropped records a dropped payload or event
func (m *Metrics) Dropped(reason string, n int) {
	m.EventsDropped.WithLabelValues(reason).Add(float64(n))
}

// SetTransportConnected implements the transports' connection observer
func (m *Metrics) SetTransportConnected(up bool) {
	if up {
		m.TransportUp.Set(1)
	} else {
		m.TransportUp.Set(0)
	}
}
