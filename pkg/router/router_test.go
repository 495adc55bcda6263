package router

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/harunnryd/procura/pkg/agents"
)

func payload(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return out
}

func TestRoutePricingBeatsManager(t *testing.T) {
	ev := Route(payload(t, `{"from": "manager_agent", "agent": "pricing_suggestion", "price": "1500", "currency": "USD", "response": "summary"}`))
	ps, ok := ev.(*PricingSuggestion)
	if !ok {
		t.Fatalf("expected pricing suggestion, got %T", ev)
	}
	if ps.Price != 1500 || ps.Currency != "USD" {
		t.Fatalf("unexpected %#v", ps)
	}

	// a manager payload that happens to carry a price is still the manager's
	ev = Route(payload(t, `{"from": "manager_agent", "price": 10, "response": "done"}`))
	if ev.Intent() != IntentManagerResponse {
		t.Fatalf("expected manager response, got %s", ev.Intent())
	}
	ev = Route(payload(t, `{"from": "manager_agent", "price": 10}`))
	if ev.Intent() != IntentManagerResponse {
		t.Fatalf("bare manager price: expected manager response, got %s", ev.Intent())
	}
}

func TestRouteRfqAdditionalFieldsRoundTrip(t *testing.T) {
	in := payload(t, `{"from":"rfq_input_generator","rfq_id":"RFQ-1","additional_fields":[{"field_name":"x","field_value":"y","field_type":"string"},{"field_name":"qty","field_value":12,"field_type":"number"},{"field_name":"due","field_value":"2026-01-31","field_type":"date"}]}`)
	ev := Route(in)
	rfq, ok := ev.(*RfqData)
	if !ok {
		t.Fatalf("expected rfq data, got %T", ev)
	}
	if rfq.RfqID != "RFQ-1" {
		t.Fatalf("unexpected rfq id %q", rfq.RfqID)
	}
	out, err := json.Marshal(rfq.AdditionalFields)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got []any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, in["additional_fields"]) {
		t.Fatalf("additional fields changed:\n got %#v\nwant %#v", got, in["additional_fields"])
	}
}

func TestRouteRfqContactPerson(t *testing.T) {
	ev := Route(payload(t, `{"rfq_id": 77, "organization_name": "Acme", "contact_person": {"name": "Dana", "email": "d@acme.test"}}`))
	rfq := ev.(*RfqData)
	if rfq.RfqID != "77" || rfq.ContactPerson.Name != "Dana" || rfq.ContactPerson.Email != "d@acme.test" {
		t.Fatalf("unexpected %#v", rfq)
	}
	if rfq.AdditionalFields == nil {
		t.Fatalf("additional fields must be an empty list, not nil")
	}

	ev = Route(payload(t, `{"from": "rfq_input_generator", "contact_name": "Lee", "contact_phone": "555"}`))
	rfq = ev.(*RfqData)
	if rfq.ContactPerson.Name != "Lee" || rfq.ContactPerson.Phone != "555" {
		t.Fatalf("flat contact fields not picked up: %#v", rfq.ContactPerson)
	}
}

func TestRouteManagerChart(t *testing.T) {
	in := map[string]any{
		"from":     "manager_agent",
		"response": `{"chart_type":"bar","title":"T","labels":["a"],"data":[1]}`,
	}
	ev := Route(in)
	chart, ok := ev.(*ChartData)
	if !ok {
		t.Fatalf("expected chart data, got %T", ev)
	}
	if chart.ChartType != "bar" || chart.Title != "T" || !reflect.DeepEqual(chart.Labels, []string{"a"}) {
		t.Fatalf("unexpected %#v", chart)
	}
	if !reflect.DeepEqual(chart.Data, []any{float64(1)}) {
		t.Fatalf("unexpected data %#v", chart.Data)
	}

	in["response"] = `'{"chart_type":"pie","title":"Share","labels":["x","y"],"data":[60,40]}'`
	if ev := Route(in); ev.Intent() != IntentChartData {
		t.Fatalf("quoted chart not recognized: %s", ev.Intent())
	}
}

func TestRouteManagerText(t *testing.T) {
	in := map[string]any{
		"from":        "manager_agent",
		"response":    "Three vendors shortlisted.",
		"agent_calls": []any{"internal_vendor_fetcher", map[string]any{"agent": "pricing_suggestion"}},
	}
	mr, ok := Route(in).(*ManagerResponse)
	if !ok {
		t.Fatalf("expected manager response")
	}
	if mr.Text != "Three vendors shortlisted." {
		t.Fatalf("unexpected text %q", mr.Text)
	}
	if !reflect.DeepEqual(mr.AgentCalls, []string{"internal_vendor_fetcher", "pricing_suggestion"}) {
		t.Fatalf("unexpected calls %#v", mr.AgentCalls)
	}

	in["response"] = `{"chart_type":"scatter","title":"T"}`
	if ev := Route(in); ev.Intent() != IntentManagerResponse {
		t.Fatalf("unsupported chart type must stay a manager response, got %s", ev.Intent())
	}
}

func TestRouteDecisionLabel(t *testing.T) {
	cases := map[string]string{
		`{"from": "chat_decision_maker", "decision": [" rfq generation "]}`:  "RFQ_GENERATION",
		`{"from": "chat_decision_maker", "decision": ["", "vendor search"]}`: "VENDOR_SEARCH",
		`{"from": "chat_decision_maker", "decision": "pricing"}`:             "PRICING",
		`{"from": "chat_decision_maker", "decision": []}`:                    "GENERAL_CHAT",
		`{"from": "chat_decision_maker"}`:                                    "GENERAL_CHAT",
	}
	for in, want := range cases {
		d, ok := Route(payload(t, in)).(*Decision)
		if !ok {
			t.Fatalf("%s: expected decision", in)
		}
		if d.Label != want {
			t.Fatalf("%s: got %q, want %q", in, d.Label, want)
		}
	}
}

func TestRouteMessageAttachment(t *testing.T) {
	ev := Route(payload(t, `{"vendor_name": "Acme", "message": "Looking up Acme"}`))
	q, ok := ev.(*InternalVendorQuery)
	if !ok || q.Message != "Looking up Acme" {
		t.Fatalf("unexpected %#v", ev)
	}
	if !reflect.DeepEqual(q.VendorNames, []string{"Acme"}) {
		t.Fatalf("unexpected names %#v", q.VendorNames)
	}

	ev = Route(payload(t, `{"project_title": "Fleet", "scope": "Trucks", "message": "narration", "customer_message": "Here is your RFP", "mandatory_requirements": "- ISO 9001\n- 24/7 support"}`))
	rfp, ok := ev.(*RfpData)
	if !ok {
		t.Fatalf("expected rfp, got %T", ev)
	}
	if rfp.CustomerMessage != "Here is your RFP" {
		t.Fatalf("unexpected customer message %q", rfp.CustomerMessage)
	}
	if !reflect.DeepEqual(rfp.MandatoryRequirements, []string{"ISO 9001", "24/7 support"}) {
		t.Fatalf("unexpected requirements %#v", rfp.MandatoryRequirements)
	}
}

func TestRouteContract(t *testing.T) {
	ev := Route(payload(t, `{"contract_title": "MSA", "parties": {"buyer": "Acme"}, "scope": {"summary": "IT"}, "fees": {"monthly": 100}, "project_title": "x", "message": "drafted"}`))
	c, ok := ev.(*ContractData)
	if !ok {
		t.Fatalf("expected contract, got %T", ev)
	}
	if c.Title != "MSA" || c.Parties["buyer"] != "Acme" || c.Message != "drafted" {
		t.Fatalf("unexpected %#v", c)
	}

	// scope as a string is not a contract
	if ev := Route(payload(t, `{"parties": {}, "scope": "IT", "fees": {}}`)); ev.Intent() == IntentContractData {
		t.Fatalf("string scope must not match contract")
	}
}

func TestRouteVendors(t *testing.T) {
	ev := Route(payload(t, `{"data": {"vendors": [
		{"company_name": "Acme", "url": "https://acme.test", "services": "welding", "certs": ["ISO 9001"], "hq": "Austin", "score": "87%", "rating": "A"},
		{"name": "Beta", "website": "https://beta.test", "service_offerings": ["a", "b"], "sources": ["https://x.test"], "compliance_score": 91.5},
		"garbage"
	]}}`))
	ext, ok := ev.(*ExternalVendors)
	if !ok {
		t.Fatalf("expected vendors, got %T", ev)
	}
	if len(ext.Vendors) != 2 {
		t.Fatalf("unexpected vendors %#v", ext.Vendors)
	}
	want := Vendor{
		Name:             "Acme",
		Website:          "https://acme.test",
		Services:         []string{"welding"},
		Certifications:   []string{"ISO 9001"},
		Headquarters:     "Austin",
		ComplianceScore:  87,
		ComplianceRating: "A",
	}
	if !reflect.DeepEqual(ext.Vendors[0], want) {
		t.Fatalf("unexpected vendor %#v", ext.Vendors[0])
	}
	if ext.Vendors[1].ComplianceScore != 91.5 || len(ext.Vendors[1].Services) != 2 {
		t.Fatalf("unexpected vendor %#v", ext.Vendors[1])
	}
}

func TestRouteUnknown(t *testing.T) {
	in := payload(t, `{"foo": "bar", "message": "hm"}`)
	u, ok := Route(in).(*Unknown)
	if !ok {
		t.Fatalf("expected unknown")
	}
	if !reflect.DeepEqual(u.Raw, in) || u.Message != "hm" {
		t.Fatalf("unexpected %#v", u)
	}
	for _, raw := range []any{"text", float64(3), []any{1.0}, nil} {
		if ev := Route(raw); ev.Intent() != IntentUnknown {
			t.Fatalf("%#v: expected unknown, got %s", raw, ev.Intent())
		}
	}
}

func TestRulesInIsolation(t *testing.T) {
	rules := Rules(agents.Default())
	want := []Intent{
		IntentPricingSuggestion,
		IntentManagerResponse,
		IntentGeneralChat,
		IntentDecision,
		IntentContractData,
		IntentRfpData,
		IntentRfqData,
		IntentExternalVendors,
		IntentInternalVendorQuery,
	}
	if len(rules) != len(want) {
		t.Fatalf("unexpected rule count %d", len(rules))
	}
	samples := map[Intent]string{
		IntentPricingSuggestion:   `{"from": "pricing_suggestion", "price": 1}`,
		IntentManagerResponse:     `{"from": "manager_agent", "response": "ok"}`,
		IntentGeneralChat:         `{"from": "general_chat", "response": "hello"}`,
		IntentDecision:            `{"from": "chat_decision_maker", "decision": ["rfq"]}`,
		IntentContractData:        `{"parties": {}, "scope": {}, "fees": {}}`,
		IntentRfpData:             `{"project_title": "P", "scope": "S"}`,
		IntentRfqData:             `{"rfq_id": "R"}`,
		IntentExternalVendors:     `{"vendors": []}`,
		IntentInternalVendorQuery: `{"category": ["steel"]}`,
	}
	for i, rule := range rules {
		if rule.Intent != want[i] {
			t.Fatalf("rule %d: got %s, want %s", i, rule.Intent, want[i])
		}
		p := payload(t, samples[rule.Intent])
		if !rule.Match(p) {
			t.Fatalf("rule %s did not match its sample", rule.Intent)
		}
		ev, err := rule.Build(p)
		if err != nil {
			t.Fatalf("rule %s build: %v", rule.Intent, err)
		}
		if ev.Intent() != rule.Intent {
			t.Fatalf("rule %s built %s", rule.Intent, ev.Intent())
		}
		if rule.Match(map[string]any{"unrelated": true}) {
			t.Fatalf("rule %s matched an unrelated payload", rule.Intent)
		}
	}
}

func TestRouteCustomRegistry(t *testing.T) {
	reg := agents.Extend(agents.Identity{Key: "gc_bot", CanonicalName: "Chat"})
	reg.Register(agents.Identity{Key: agents.KeyGeneralChat, CanonicalName: "General Chat"})
	r := New(reg)
	if ev := r.Route(map[string]any{"from": "general-chat", "response": "hi"}); ev.Intent() != IntentGeneralChat {
		t.Fatalf("unexpected %s", ev.Intent())
	}
}
