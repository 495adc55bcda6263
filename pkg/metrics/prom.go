package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromObserver turns metric events into Prometheus collectors. Only
// bounded tags become labels; session ids never do.
type PromObserver struct {
	frames         *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
	decodeFailures *prometheus.CounterVec
	routed         *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	reconnects     prometheus.Counter
	listenerPanics prometheus.Counter
	agentCalls     *prometheus.CounterVec
	agentLatency   *prometheus.HistogramVec
	other          *prometheus.CounterVec
}

func NewPromObserver() *PromObserver {
	return &PromObserver{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procura_frames_total",
				Help: "Frames seen by the pipeline by direction and kind",
			},
			[]string{"direction", "kind"},
		),
		stageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "procura_stage_latency_seconds",
				Help:    "Processing time of a pipeline stage",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"processor"},
		),
		decodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procura_decode_failures_total",
				Help: "Tool outputs that could not be recovered",
			},
			[]string{"reason"},
		),
		routed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procura_routed_events_total",
				Help: "Routed agent outputs by intent",
			},
			[]string{"intent"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procura_stream_transitions_total",
				Help: "Session stream state transitions",
			},
			[]string{"from", "to"},
		),
		reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "procura_stream_reconnects_total",
				Help: "Reconnect attempts scheduled by session streams",
			},
		),
		listenerPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "procura_listener_panics_total",
				Help: "Subscriber callbacks that panicked",
			},
		),
		agentCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procura_agent_calls_total",
				Help: "HTTP agent invocations by agent and outcome",
			},
			[]string{"agent", "status"},
		),
		agentLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "procura_agent_call_duration_seconds",
				Help:    "HTTP agent invocation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		other: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procura_events_total",
				Help: "Other metric events by name",
			},
			[]string{"name"},
		),
	}
}

// Register adds every collector to r.
func (p *PromObserver) Register(r prometheus.Registerer) error {
	for _, c := range p.collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *PromObserver) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.frames, p.stageLatency, p.decodeFailures, p.routed, p.transitions,
		p.reconnects, p.listenerPanics, p.agentCalls, p.agentLatency, p.other,
	}
}

func (p *PromObserver) RecordEvent(ev MetricsEvent) {
	tag := func(k string) string { return ev.Tags[k] }
	switch ev.Name {
	case EventFrameIn:
		p.frames.WithLabelValues("in", tag("kind")).Inc()
	case EventFrameOut:
		p.frames.WithLabelValues("out", tag("kind")).Inc()
	case EventFrameDropped:
		p.frames.WithLabelValues("dropped", tag("kind")).Inc()
	case EventStageLatency:
		p.stageLatency.WithLabelValues(tag("processor")).Observe(ev.Value / 1e6)
	case EventDecodeFailed:
		p.decodeFailures.WithLabelValues(tag("reason")).Inc()
	case EventRouted, EventUnknownIntent:
		p.routed.WithLabelValues(tag("intent")).Inc()
	case EventStreamState:
		p.transitions.WithLabelValues(tag("from"), tag("to")).Inc()
	case EventReconnectScheduled:
		p.reconnects.Inc()
	case EventListenerPanic:
		p.listenerPanics.Inc()
	case EventAgentCall:
		p.agentCalls.WithLabelValues(tag("agent"), tag("status")).Inc()
		p.agentLatency.WithLabelValues(tag("agent")).Observe(ev.Value / 1e3)
	default:
		p.other.WithLabelValues(ev.Name).Inc()
	}
}
