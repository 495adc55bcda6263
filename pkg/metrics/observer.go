package metrics

import "time"

// MetricsEvent is one measurement. Tags are low cardinality and may become
// Prometheus labels; Fields carry free-form detail.
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Event names shared by the stream, the pipeline and the agent client.
const (
	EventFrameIn            = "frame_in"
	EventFrameOut           = "frame_out"
	EventFrameDropped       = "frame_dropped"
	EventStageLatency       = "stage_latency_us"
	EventDecodeFailed       = "decode_failed"
	EventRouted             = "event_routed"
	EventUnknownIntent      = "unknown_intent"
	EventStreamState        = "stream_state"
	EventReconnectScheduled = "reconnect_scheduled"
	EventListenerPanic      = "listener_panic"
	EventAgentCall          = "agent_call"
	EventAgentLifecycle     = "agent_lifecycle"
)
