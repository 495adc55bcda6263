package frames

import (
	"testing"
	"time"

	"github.com/harunnryd/procura/pkg/router"
)

func TestParseWireEvent(t *testing.T) {
	ev, err := ParseWireEvent(`{"event_type":"tool_output","status":"success","tool_name":"rfq_input_generator","tool_output":"{'response': '{}'}","session_id":"s-1"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ev.IsToolOutputSuccess() {
		t.Fatalf("expected successful tool output")
	}
	if ev.Agent() != "rfq_input_generator" {
		t.Fatalf("unexpected agent %q", ev.Agent())
	}

	failed, _ := ParseWireEvent(`{"event_type":"tool_output","status":"error","tool_output":"boom"}`)
	if failed.IsToolOutputSuccess() {
		t.Fatalf("error status must not be decoded")
	}
	empty, _ := ParseWireEvent(`{"event_type":"tool_output","status":"success"}`)
	if empty.IsToolOutputSuccess() {
		t.Fatalf("missing tool output must not be decoded")
	}
}

func TestWireEventPhaseAliases(t *testing.T) {
	cases := map[string]AgentPhase{
		"agent_start":     AgentStart,
		"Agent_Started":   AgentStart,
		"agent_end":       AgentEnd,
		"agent_ended":     AgentEnd,
		"agent_completed": AgentEnd,
	}
	for typ, want := range cases {
		got, ok := WireEvent{EventType: typ}.Phase()
		if !ok || got != want {
			t.Fatalf("%s: got %q ok=%v", typ, got, ok)
		}
	}
	if _, ok := (WireEvent{EventType: "heartbeat"}).Phase(); ok {
		t.Fatalf("heartbeat is not a lifecycle event")
	}
}

func TestFrameMetaIsCopied(t *testing.T) {
	f := NewOutputFrame("s-1", 1, &router.GeneralChat{Text: "hi"}, map[string]string{MetaTraceID: "t"})
	meta := f.Meta()
	meta[MetaSessionID] = "tampered"
	if SessionID(f) != "s-1" {
		t.Fatalf("meta must be copied on read")
	}
	if f.Meta()[MetaIntent] != string(router.IntentGeneralChat) {
		t.Fatalf("intent meta missing")
	}
}

func TestPTSGenMonotonic(t *testing.T) {
	fixed := time.Unix(100, 0)
	g := NewPTSGen(func() time.Time { return fixed })
	a := g.Next("s")
	b := g.Next("s")
	if b <= a {
		t.Fatalf("expected increasing pts, got %d then %d", a, b)
	}
	g.Forget("s")
	if c := g.Next("s"); c != fixed.UnixNano() {
		t.Fatalf("expected reset after Forget, got %d", c)
	}
}
