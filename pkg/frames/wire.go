package frames

import (
	"encoding/json"
	"strings"
)

// Wire event types on the metrics socket.
const (
	EventToolOutput = "tool_output"
	EventAgentStart = "agent_start"
	EventAgentEnd   = "agent_end"

	StatusSuccess = "success"
)

var phaseAliases = map[string]AgentPhase{
	"agent_start":     AgentStart,
	"agent_started":   AgentStart,
	"agent_end":       AgentEnd,
	"agent_ended":     AgentEnd,
	"agent_completed": AgentEnd,
}

// WireEvent is the JSON envelope of one metrics socket message.
// tool_output is usually a repr string but some deployments send an object.
type WireEvent struct {
	EventType  string          `json:"event_type"`
	Status     string          `json:"status,omitempty"`
	AgentName  string          `json:"agent_name,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolOutput json.RawMessage `json:"tool_output,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

func ParseWireEvent(text string) (WireEvent, error) {
	var ev WireEvent
	err := json.Unmarshal([]byte(text), &ev)
	return ev, err
}

// IsToolOutputSuccess reports whether the event should be handed to the
// decoder.
func (w WireEvent) IsToolOutputSuccess() bool {
	return normalizeType(w.EventType) == EventToolOutput &&
		strings.EqualFold(strings.TrimSpace(w.Status), StatusSuccess) &&
		len(w.ToolOutput) > 0
}

// Phase maps lifecycle event types, including their aliases.
func (w WireEvent) Phase() (AgentPhase, bool) {
	p, ok := phaseAliases[normalizeType(w.EventType)]
	return p, ok
}

// Agent names the agent an event is about, falling back to the tool.
func (w WireEvent) Agent() string {
	if name := strings.TrimSpace(w.AgentName); name != "" {
		return name
	}
	return strings.TrimSpace(w.ToolName)
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
