package router

import (
	"strings"

	"github.com/harunnryd/procura/pkg/agents"
	"github.com/harunnryd/procura/pkg/envelope"
)

var chartTypes = map[string]struct{}{
	"pie":  {},
	"bar":  {},
	"line": {},
	"text": {},
}

// Rules returns the routing table in priority order. Payloads from
// different agents share incidental fields, so the order is significant.
func Rules(registry *agents.Registry) []Rule {
	fromAgent := func(key string) func(map[string]any) bool {
		return func(p map[string]any) bool {
			for _, marker := range origins(p) {
				if registry.IsOrigin(marker, key) {
					return true
				}
			}
			return false
		}
	}
	isPricing := fromAgent(agents.KeyPricingSuggestion)
	isRFQ := fromAgent(agents.KeyRFQGenerator)

	return []Rule{
		{
			Intent: IntentPricingSuggestion,
			Match: func(p map[string]any) bool {
				return has(p, "price") && isPricing(p)
			},
			Build: buildPricing,
		},
		{
			Intent: IntentManagerResponse,
			Match:  fromAgent(agents.KeyManager),
			Build:  buildManager,
		},
		{
			Intent: IntentGeneralChat,
			Match:  fromAgent(agents.KeyGeneralChat),
			Build:  buildGeneralChat,
		},
		{
			Intent: IntentDecision,
			Match:  fromAgent(agents.KeyDecisionMaker),
			Build:  buildDecision,
		},
		{
			Intent: IntentContractData,
			Match: func(p map[string]any) bool {
				return isObject(p["parties"]) && isObject(p["scope"]) && isObject(p["fees"])
			},
			Build: buildContract,
		},
		{
			Intent: IntentRfpData,
			Match: func(p map[string]any) bool {
				return has(p, "project_title") && has(p, "scope")
			},
			Build: buildRfp,
		},
		{
			Intent: IntentRfqData,
			Match: func(p map[string]any) bool {
				return isRFQ(p) || has(p, "rfq_id")
			},
			Build: buildRfq,
		},
		{
			Intent: IntentExternalVendors,
			Match: func(p map[string]any) bool {
				_, ok := vendorList(p)
				return ok
			},
			Build: buildVendors,
		},
		{
			Intent: IntentInternalVendorQuery,
			Match: func(p map[string]any) bool {
				return has(p, "vendor_name") || has(p, "category")
			},
			Build: buildInternalQuery,
		},
	}
}

// origins returns the agent markers a payload carries about its
// producers. A manager relaying a pricing result names both.
func origins(p map[string]any) []string {
	var out []string
	for _, key := range []string{"from", "agent", "agent_name", "source"} {
		if s, ok := p[key].(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func buildPricing(p map[string]any) (Event, error) {
	ev := &PricingSuggestion{}
	err := decode(p, ev)
	if ev.Rationale == "" {
		ev.Rationale = firstString(p, "justification", "reasoning", "explanation")
	}
	ev.Details = p
	return ev, err
}

func buildManager(p map[string]any) (Event, error) {
	calls := stringList(first(p, "agent_calls", "agent_sequence", "agents_called"))
	switch resp := p["response"].(type) {
	case map[string]any:
		if isChart(resp) {
			return buildChart(resp)
		}
	case string:
		if obj, ok := envelope.NormalizeString(resp).(map[string]any); ok && isChart(obj) {
			return buildChart(obj)
		}
		return &ManagerResponse{Text: resp, AgentCalls: calls}, nil
	}
	return &ManagerResponse{Text: firstString(p, "content", "message"), AgentCalls: calls}, nil
}

func isChart(obj map[string]any) bool {
	ct, ok := obj["chart_type"].(string)
	if !ok {
		return false
	}
	_, ok = chartTypes[strings.ToLower(strings.TrimSpace(ct))]
	return ok
}

func buildChart(obj map[string]any) (Event, error) {
	ev := &ChartData{}
	err := decode(obj, ev)
	ev.ChartType = strings.ToLower(strings.TrimSpace(ev.ChartType))
	return ev, err
}

func buildGeneralChat(p map[string]any) (Event, error) {
	return &GeneralChat{Text: firstString(p, "response", "content", "text")}, nil
}

func buildDecision(p map[string]any) (Event, error) {
	label := ""
	for _, item := range stringList(p["decision"]) {
		if strings.TrimSpace(item) != "" {
			label = item
			break
		}
	}
	return &Decision{Label: decisionLabel(label)}, nil
}

func decisionLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "GENERAL_CHAT"
	}
	return strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
}

func buildContract(p map[string]any) (Event, error) {
	ev := &ContractData{}
	err := decode(p, ev)
	if ev.Title == "" {
		ev.Title = firstString(p, "title")
	}
	return ev, err
}

func buildRfp(p map[string]any) (Event, error) {
	ev := &RfpData{}
	err := decode(p, ev)
	ev.MandatoryRequirements = requirementList(p["mandatory_requirements"])
	return ev, err
}

func buildRfq(p map[string]any) (Event, error) {
	ev := &RfqData{}
	err := decode(p, ev)
	if ev.ContactPerson == (ContactPerson{}) {
		ev.ContactPerson = ContactPerson{
			Name:     firstString(p, "contact_person_name", "contact_name"),
			Email:    firstString(p, "contact_person_email", "contact_email"),
			Phone:    firstString(p, "contact_person_phone", "contact_phone"),
			Position: firstString(p, "contact_person_position", "contact_position"),
		}
	}
	if ev.AdditionalFields == nil {
		ev.AdditionalFields = []AdditionalField{}
	}
	return ev, err
}

func buildVendors(p map[string]any) (Event, error) {
	list, _ := vendorList(p)
	vendors := make([]Vendor, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			vendors = append(vendors, normalizeVendor(obj))
		}
	}
	return &ExternalVendors{Vendors: vendors}, nil
}

func vendorList(p map[string]any) ([]any, bool) {
	if list, ok := p["vendors"].([]any); ok {
		return list, true
	}
	if data, ok := p["data"].(map[string]any); ok {
		if list, ok := data["vendors"].([]any); ok {
			return list, true
		}
	}
	return nil, false
}

func buildInternalQuery(p map[string]any) (Event, error) {
	return &InternalVendorQuery{
		VendorNames: stringList(p["vendor_name"]),
		Categories:  stringList(p["category"]),
	}, nil
}
