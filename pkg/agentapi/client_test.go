package agentapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/procura/pkg/errorsx"
	"github.com/harunnryd/procura/pkg/metrics"
	"github.com/harunnryd/procura/pkg/resilience"
	"github.com/harunnryd/procura/pkg/router"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{
		BaseURL: srv.URL,
		Path:    "/chat",
		APIKey:  "secret",
		UserID:  "user-1",
		IDs:     map[string]string{"pricing": "agent-pricing", "general_chat": "agent-chat"},
	}, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestInvokeSendsEnvelopeAndRoutes(t *testing.T) {
	var got wireRequest
	var headers http.Header
	mem := metrics.NewMemoryObserver()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"response": "\"{\\\"from\\\": \\\"pricing_suggestion\\\", \\\"price\\\": 1200, \\\"currency\\\": \\\"USD\\\"}\""}`))
	}, WithObserver(mem))

	res, err := c.Invoke(context.Background(), Request{
		Agent:     "Pricing",
		SessionID: "s1",
		Message:   "how much for 10 laptops?",
		Assets:    []map[string]any{{"url": "s3://bucket/brief.pdf"}},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got.AgentID != "agent-pricing" || got.UserID != "user-1" || got.SessionID != "s1" || len(got.Assets) != 1 {
		t.Fatalf("unexpected request body %+v", got)
	}
	if headers.Get("X-Request-ID") == "" || headers.Get("X-API-Key") != "secret" {
		t.Fatalf("missing headers %v", headers)
	}
	pricing, ok := res.Event.(*router.PricingSuggestion)
	if !ok {
		t.Fatalf("expected pricing event, got %T (%v)", res.Event, res.Value)
	}
	if pricing.Price != 1200 || pricing.Currency != "USD" {
		t.Fatalf("unexpected pricing %+v", pricing)
	}
	calls := mem.Named(metrics.EventAgentCall)
	if len(calls) != 1 || calls[0].Tags["status"] != "ok" || calls[0].Tags["agent"] != "agent-pricing" {
		t.Fatalf("unexpected call metrics %+v", calls)
	}
}

func TestInvokePlainTextReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": "Happy to help with your sourcing."}`))
	})
	res, err := c.Invoke(context.Background(), Request{Agent: "general_chat", Message: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	obj, ok := res.Value.(map[string]any)
	if !ok || obj["response"] != "Happy to help with your sourcing." {
		t.Fatalf("unexpected value %#v", res.Value)
	}
}

func TestInvokeErrors(t *testing.T) {
	rateLimited := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})
	_, err := rateLimited.Invoke(context.Background(), Request{Agent: "pricing"})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if d, ok := resilience.RetryAfter(err); !ok || d != 3*time.Second {
		t.Fatalf("expected 3s retry hint, got %v %v", d, ok)
	}

	broken := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err = broken.Invoke(context.Background(), Request{Agent: "pricing"})
	if !errorsx.HasReason(err, errorsx.ReasonAgentHTTP) {
		t.Fatalf("expected agent_http reason, got %v", err)
	}

	_, err = broken.Invoke(context.Background(), Request{Agent: "negotiation"})
	if !errorsx.HasReason(err, errorsx.ReasonAgentUnknown) {
		t.Fatalf("expected agent_unknown reason, got %v", err)
	}
}

func TestInvokeDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	if _, err := c.Invoke(context.Background(), Request{AgentID: "raw-id"}); err == nil {
		t.Fatalf("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("expected config_invalid, got %v", err)
	}
	if _, err := NewClient(Config{BaseURL: "not-a-url"}); !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("expected config_invalid, got %v", err)
	}
}

func TestAgentIDLookup(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://agents.local", IDs: map[string]string{"vendor_search": "v-1"}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if id, ok := c.AgentID("Vendor-Search"); !ok || id != "v-1" {
		t.Fatalf("unexpected lookup %q %v", id, ok)
	}
	if _, ok := c.AgentID("rfq"); ok {
		t.Fatalf("expected rfq to be unconfigured")
	}
}
