package processors

import (
	"log/slog"
	"strings"

	"github.com/harunnryd/procura/pkg/agents"
	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/pipeline"
	"github.com/harunnryd/procura/pkg/redact"
)

// EnvelopeProcessor parses the wire envelope of raw socket frames.
// Successful tool outputs continue as ToolOutputFrames, lifecycle events
// become AgentFrames, and everything else is dropped.
type EnvelopeProcessor struct {
	registry *agents.Registry
	log      *slog.Logger
}

func NewEnvelopeProcessor(registry *agents.Registry, log *slog.Logger) *EnvelopeProcessor {
	if registry == nil {
		registry = agents.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &EnvelopeProcessor{registry: registry, log: log}
}

func (p *EnvelopeProcessor) Name() string { return "envelope_processor" }

func (p *EnvelopeProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	if f.Kind() != frames.KindRaw {
		return []frames.Frame{f}, nil
	}
	raw := f.(frames.RawFrame)
	meta := raw.Meta()
	sessionID := meta[frames.MetaSessionID]

	ev, err := frames.ParseWireEvent(raw.Text())
	if err != nil {
		p.log.Debug("envelope_invalid", "session_id", sessionID, "error", err, "raw", redact.Snippet(raw.Text()))
		return nil, nil
	}
	if ev.Timestamp != "" {
		meta[frames.MetaTimestamp] = ev.Timestamp
	}

	if ev.IsToolOutputSuccess() {
		// The tool that produced the output names it; agent_name may be the
		// relaying agent.
		producer := strings.TrimSpace(ev.ToolName)
		if producer == "" {
			producer = ev.Agent()
		}
		withIdentity(meta, p.registry.Classify(producer))
		if ev.AgentName != "" {
			meta[frames.MetaAgent] = ev.AgentName
		}
		return []frames.Frame{frames.NewToolOutputFrame(sessionID, raw.PTS(), ev.ToolName, ev.ToolOutput, meta)}, nil
	}
	if phase, ok := ev.Phase(); ok {
		agent := ev.Agent()
		withIdentity(meta, p.registry.Classify(agent))
		return []frames.Frame{frames.NewAgentFrame(sessionID, raw.PTS(), phase, agent, meta)}, nil
	}
	p.log.Debug("envelope_ignored", "session_id", sessionID, "event_type", ev.EventType, "status", ev.Status)
	return nil, nil
}

func withIdentity(meta map[string]string, id agents.Identity) {
	meta[frames.MetaAgentKey] = id.Key
	meta[frames.MetaAgentName] = id.CanonicalName
	meta[frames.MetaAgentStatus] = id.StatusDescription
}

var _ pipeline.FrameProcessor = (*EnvelopeProcessor)(nil)
