package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/metrics"
)

// AgentLatencyObserver logs how long each agent ran, measured between its
// agent_start and agent_end lifecycle events within a session.
type AgentLatencyObserver struct {
	mu      sync.Mutex
	started map[string]time.Time
	log     *slog.Logger
}

func NewAgentLatencyObserver(log *slog.Logger) *AgentLatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &AgentLatencyObserver{
		started: make(map[string]time.Time),
		log:     log,
	}
}

func (o *AgentLatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	if ev.Name != metrics.EventAgentLifecycle || ev.Tags == nil {
		return
	}
	sessionID := ev.Tags[frames.MetaSessionID]
	agent := ev.Tags[frames.MetaAgent]
	if sessionID == "" || agent == "" {
		return
	}
	key := sessionID + "/" + agent

	o.mu.Lock()
	defer o.mu.Unlock()
	switch frames.AgentPhase(ev.Tags["phase"]) {
	case frames.AgentStart:
		o.started[key] = ev.Time
	case frames.AgentEnd:
		start, ok := o.started[key]
		if !ok {
			return
		}
		delete(o.started, key)
		o.log.Info("agent_latency",
			"session_id", sessionID,
			"agent", agent,
			"agent_name", ev.Tags[frames.MetaAgentName],
			"duration_ms", ev.Time.Sub(start).Milliseconds(),
		)
	}
}

// Pending reports agents that started but have not ended yet.
func (o *AgentLatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.started)
}
