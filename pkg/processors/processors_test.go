package processors

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/metrics"
	"github.com/harunnryd/procura/pkg/pipeline"
	"github.com/harunnryd/procura/pkg/router"
)

func wire(t *testing.T, fields map[string]any) string {
	t.Helper()
	b, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

const rfqRepr = `{'response': '{\"rfq_id\": \"RFQ-7\", \"organization_name\": \"Acme\", \"contact_person\": {\"name\": \"Dana\"}', 'module_outputs': {}}`

func chain(policy UnknownPolicy, obs metrics.Observer) *pipeline.Chain {
	return clockedChain(policy, obs, nil)
}

func clockedChain(policy UnknownPolicy, obs metrics.Observer, now func() time.Time) *pipeline.Chain {
	return pipeline.NewChain(
		NewEnvelopeProcessor(nil, nil),
		NewDecodeProcessor(obs, now, nil),
		NewRouteProcessor(nil, policy, obs, now, nil),
	)
}

func TestToolOutputBecomesRoutedOutput(t *testing.T) {
	mem := metrics.NewMemoryObserver()
	text := wire(t, map[string]any{
		"event_type":  "tool_output",
		"status":      "success",
		"tool_name":   "rfq_input_generator",
		"tool_output": rfqRepr,
	})
	out := chain(UnknownSurface, mem).Run(frames.NewRawFrame("s1", 1, text, nil))
	if len(out) != 1 {
		t.Fatalf("expected one frame, got %d", len(out))
	}
	of, ok := out[0].(frames.OutputFrame)
	if !ok {
		t.Fatalf("expected output frame, got %T", out[0])
	}
	rfq, ok := of.Event().(*router.RfqData)
	if !ok {
		t.Fatalf("expected rfq event, got %T", of.Event())
	}
	if rfq.RfqID != "RFQ-7" || rfq.ContactPerson.Name != "Dana" {
		t.Fatalf("unexpected rfq %+v", rfq)
	}
	meta := of.Meta()
	if meta[frames.MetaAgentName] != "RFQ Generator" {
		t.Fatalf("unexpected agent name %q", meta[frames.MetaAgentName])
	}
	if meta[frames.MetaIntent] != string(router.IntentRfqData) || meta[frames.MetaSessionID] != "s1" {
		t.Fatalf("unexpected meta %v", meta)
	}
	if n := len(mem.Named(metrics.EventRouted)); n != 1 {
		t.Fatalf("expected one routed metric, got %d", n)
	}
}

func TestLifecycleBecomesAgentFrame(t *testing.T) {
	text := wire(t, map[string]any{"event_type": "agent_started", "agent_name": "pricing_suggestion"})
	out := chain(UnknownSurface, nil).Run(frames.NewRawFrame("s1", 1, text, nil))
	if len(out) != 1 {
		t.Fatalf("expected one frame, got %d", len(out))
	}
	af, ok := out[0].(frames.AgentFrame)
	if !ok {
		t.Fatalf("expected agent frame, got %T", out[0])
	}
	if af.Phase() != frames.AgentStart || af.Agent() != "pricing_suggestion" {
		t.Fatalf("unexpected agent frame %v %q", af.Phase(), af.Agent())
	}
	if got := af.Meta()[frames.MetaAgentName]; got != "Pricing Advisor" {
		t.Fatalf("unexpected agent name %q", got)
	}
}

func TestToolOutputClassifiedByToolName(t *testing.T) {
	text := wire(t, map[string]any{
		"event_type":  "tool_output",
		"status":      "success",
		"agent_name":  "manager_agent",
		"tool_name":   "pricing_suggestion",
		"tool_output": map[string]any{"foo": "bar"},
	})
	out := chain(UnknownSurface, nil).Run(frames.NewRawFrame("s1", 1, text, nil))
	if len(out) != 1 {
		t.Fatalf("expected one frame, got %d", len(out))
	}
	meta := out[0].Meta()
	if meta[frames.MetaAgentName] != "Pricing Advisor" {
		t.Fatalf("expected tool identity, got %q", meta[frames.MetaAgentName])
	}
	if meta[frames.MetaAgent] != "manager_agent" {
		t.Fatalf("expected relaying agent kept, got %q", meta[frames.MetaAgent])
	}
}

func TestMetricsUseInjectedClock(t *testing.T) {
	at := time.Unix(1700000000, 0)
	now := func() time.Time { return at }
	mem := metrics.NewMemoryObserver()
	c := clockedChain(UnknownSurface, mem, now)

	routed := wire(t, map[string]any{
		"event_type":  "tool_output",
		"status":      "success",
		"tool_name":   "rfq_input_generator",
		"tool_output": rfqRepr,
	})
	unknown := wire(t, map[string]any{
		"event_type":  "tool_output",
		"status":      "success",
		"tool_name":   "worker",
		"tool_output": map[string]any{"foo": "bar"},
	})
	broken := wire(t, map[string]any{
		"event_type":  "tool_output",
		"status":      "success",
		"tool_name":   "general_chat",
		"tool_output": "{'module_outputs': {}}",
	})
	for _, text := range []string{routed, unknown, broken} {
		c.Run(frames.NewRawFrame("s1", 1, text, nil))
	}
	for _, name := range []string{metrics.EventRouted, metrics.EventUnknownIntent, metrics.EventDecodeFailed} {
		events := mem.Named(name)
		if len(events) != 1 {
			t.Fatalf("%s: expected one event, got %d", name, len(events))
		}
		if !events[0].Time.Equal(at) {
			t.Fatalf("%s: expected time %v, got %v", name, at, events[0].Time)
		}
	}
}

func TestNonSuccessAndGarbageAreDropped(t *testing.T) {
	c := chain(UnknownSurface, nil)
	cases := []string{
		wire(t, map[string]any{"event_type": "tool_output", "status": "error", "tool_output": rfqRepr}),
		wire(t, map[string]any{"event_type": "tool_output", "status": "success"}),
		wire(t, map[string]any{"event_type": "heartbeat"}),
		"not json",
	}
	for _, text := range cases {
		if out := c.Run(frames.NewRawFrame("s1", 1, text, nil)); len(out) != 0 {
			t.Fatalf("expected drop for %q, got %v", text, out)
		}
	}
}

func TestDecodeFailureIsRecordedAndDropped(t *testing.T) {
	mem := metrics.NewMemoryObserver()
	text := wire(t, map[string]any{
		"event_type":  "tool_output",
		"status":      "success",
		"tool_name":   "general_chat",
		"tool_output": "{'module_outputs': {}}",
	})
	if out := chain(UnknownSurface, mem).Run(frames.NewRawFrame("s1", 1, text, nil)); len(out) != 0 {
		t.Fatalf("expected drop, got %v", out)
	}
	failed := mem.Named(metrics.EventDecodeFailed)
	if len(failed) != 1 || failed[0].Tags["reason"] != "decode_no_response" {
		t.Fatalf("unexpected decode metrics %+v", failed)
	}
}

func TestUnknownPolicy(t *testing.T) {
	text := wire(t, map[string]any{
		"event_type":  "tool_output",
		"status":      "success",
		"tool_name":   "worker",
		"tool_output": map[string]any{"foo": "bar"},
	})

	surfaced := chain(UnknownSurface, nil).Run(frames.NewRawFrame("s1", 1, text, nil))
	if len(surfaced) != 1 {
		t.Fatalf("expected unknown to surface, got %d frames", len(surfaced))
	}
	if _, ok := surfaced[0].(frames.OutputFrame).Event().(*router.Unknown); !ok {
		t.Fatalf("expected unknown event, got %T", surfaced[0].(frames.OutputFrame).Event())
	}

	mem := metrics.NewMemoryObserver()
	if out := chain(UnknownLog, mem).Run(frames.NewRawFrame("s1", 1, text, nil)); len(out) != 0 {
		t.Fatalf("expected unknown to be dropped, got %v", out)
	}
	if n := len(mem.Named(metrics.EventUnknownIntent)); n != 1 {
		t.Fatalf("expected unknown metric, got %d", n)
	}
}

func TestProcessorsPassThroughOtherKinds(t *testing.T) {
	sys := frames.NewSystemFrame("s1", 1, frames.SystemConnected, nil)
	procs := []pipeline.FrameProcessor{
		NewEnvelopeProcessor(nil, nil),
		NewDecodeProcessor(nil, nil, nil),
		NewRouteProcessor(nil, "", nil, nil, nil),
	}
	for _, p := range procs {
		out, err := p.Process(sys)
		if err != nil || len(out) != 1 || out[0].Kind() != frames.KindSystem {
			t.Fatalf("%s: expected pass-through, got %v %v", p.Name(), out, err)
		}
	}
}

func TestParseUnknownPolicy(t *testing.T) {
	if ParseUnknownPolicy("log") != UnknownLog {
		t.Fatalf("expected log policy")
	}
	if ParseUnknownPolicy("whatever") != UnknownSurface {
		t.Fatalf("expected surface fallback")
	}
}
