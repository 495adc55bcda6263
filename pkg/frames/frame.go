package frames

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/harunnryd/procura/pkg/router"
)

type Kind string

const (
	KindRaw        Kind = "raw"
	KindToolOutput Kind = "tool_output"
	KindDecoded    Kind = "decoded"
	KindAgent      Kind = "agent"
	KindOutput     Kind = "output"
	KindSystem     Kind = "system"
)

// AgentPhase marks the start or end of an agent's work.
type AgentPhase string

const (
	AgentStart AgentPhase = "agent_start"
	AgentEnd   AgentPhase = "agent_end"
)

// System frame names.
const (
	SystemConnected    = "connected"
	SystemDisconnected = "disconnected"
	SystemReconnecting = "reconnecting"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

type RawFrame struct {
	pts  int64
	text string
	meta map[string]string
}

func NewRawFrame(sessionID string, pts int64, text string, meta map[string]string) RawFrame {
	return RawFrame{
		pts:  pts,
		text: text,
		meta: mergeMeta(sessionID, meta),
	}
}

func (r RawFrame) Kind() Kind              { return KindRaw }
func (r RawFrame) PTS() int64              { return r.pts }
func (r RawFrame) Meta() map[string]string { return cloneMeta(r.meta) }
func (r RawFrame) Text() string            { return r.text }

// ToolOutputFrame is a successful tool_output wire event whose payload has
// not been decoded yet.
type ToolOutputFrame struct {
	pts      int64
	toolName string
	output   json.RawMessage
	meta     map[string]string
}

func NewToolOutputFrame(sessionID string, pts int64, toolName string, output json.RawMessage, meta map[string]string) ToolOutputFrame {
	m := mergeMeta(sessionID, meta)
	if toolName != "" {
		m[MetaToolName] = toolName
	}
	return ToolOutputFrame{
		pts:      pts,
		toolName: toolName,
		output:   append(json.RawMessage(nil), output...),
		meta:     m,
	}
}

func (t ToolOutputFrame) Kind() Kind              { return KindToolOutput }
func (t ToolOutputFrame) PTS() int64              { return t.pts }
func (t ToolOutputFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t ToolOutputFrame) ToolName() string        { return t.toolName }
func (t ToolOutputFrame) Output() json.RawMessage { return append(json.RawMessage(nil), t.output...) }

type DecodedFrame struct {
	pts      int64
	toolName string
	payload  any
	meta     map[string]string
}

func NewDecodedFrame(sessionID string, pts int64, toolName string, payload any, meta map[string]string) DecodedFrame {
	m := mergeMeta(sessionID, meta)
	if toolName != "" {
		m[MetaToolName] = toolName
	}
	return DecodedFrame{
		pts:      pts,
		toolName: toolName,
		payload:  payload,
		meta:     m,
	}
}

func (d DecodedFrame) Kind() Kind              { return KindDecoded }
func (d DecodedFrame) PTS() int64              { return d.pts }
func (d DecodedFrame) Meta() map[string]string { return cloneMeta(d.meta) }
func (d DecodedFrame) ToolName() string        { return d.toolName }
func (d DecodedFrame) Payload() any            { return d.payload }

// AgentFrame is a lifecycle notification. The display identity travels in
// the MetaAgentName and MetaAgentStatus meta keys.
type AgentFrame struct {
	pts   int64
	phase AgentPhase
	agent string
	meta  map[string]string
}

func NewAgentFrame(sessionID string, pts int64, phase AgentPhase, agent string, meta map[string]string) AgentFrame {
	m := mergeMeta(sessionID, meta)
	if agent != "" {
		m[MetaAgent] = agent
	}
	return AgentFrame{
		pts:   pts,
		phase: phase,
		agent: agent,
		meta:  m,
	}
}

func (a AgentFrame) Kind() Kind              { return KindAgent }
func (a AgentFrame) PTS() int64              { return a.pts }
func (a AgentFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AgentFrame) Phase() AgentPhase       { return a.phase }
func (a AgentFrame) Agent() string           { return a.agent }

// OutputFrame carries a routed event to subscribers.
type OutputFrame struct {
	pts   int64
	event router.Event
	meta  map[string]string
}

func NewOutputFrame(sessionID string, pts int64, event router.Event, meta map[string]string) OutputFrame {
	m := mergeMeta(sessionID, meta)
	if event != nil {
		m[MetaIntent] = string(event.Intent())
	}
	return OutputFrame{
		pts:   pts,
		event: event,
		meta:  m,
	}
}

func (o OutputFrame) Kind() Kind              { return KindOutput }
func (o OutputFrame) PTS() int64              { return o.pts }
func (o OutputFrame) Meta() map[string]string { return cloneMeta(o.meta) }
func (o OutputFrame) Event() router.Event     { return o.event }

type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(sessionID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{
		pts:  pts,
		name: name,
		meta: mergeMeta(sessionID, meta),
	}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

// PTSGen hands out strictly increasing timestamps per session so frames
// keep their arrival order even when the wall clock stalls.
type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
	now   func() time.Time
}

func NewPTSGen(now func() time.Time) *PTSGen {
	if now == nil {
		now = time.Now
	}
	return &PTSGen{value: make(map[string]int64), now: now}
}

func (g *PTSGen) Next(sessionID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.now().UnixNano()
	if last := g.value[sessionID]; v <= last {
		v = last + 1
	}
	g.value[sessionID] = v
	return v
}

// Forget drops the counter of a finished session.
func (g *PTSGen) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.value, sessionID)
}

func mergeMeta(sessionID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if sessionID != "" {
		out[MetaSessionID] = sessionID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// SessionID reads the session id meta key of any frame.
func SessionID(f Frame) string {
	if f == nil {
		return ""
	}
	return f.Meta()[MetaSessionID]
}
