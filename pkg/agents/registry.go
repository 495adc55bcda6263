// Package agents maps the tool names reported by the agent platform to the
// display identity shown while an agent is working.
package agents

import (
	"sort"
	"strings"
	"sync"

	"github.com/harunnryd/procura/pkg/configutil"
)

// Keys of the built-in identities. The router uses them as origin markers.
const (
	KeyDecisionMaker         = "chat_decision_maker"
	KeyInternalVendorFetcher = "internal_vendor_fetcher"
	KeyExternalVendorFetcher = "external_vendor_fetcher"
	KeyVendorSearch          = "vendor_search"
	KeyRFQGenerator          = "rfq_input_generator"
	KeyRFPGenerator          = "rfp_input_generator"
	KeyContractGenerator     = "contract_generator"
	KeyPricingSuggestion     = "pricing_suggestion"
	KeyCertificationChecker  = "certification_checker"
	KeyNegotiation           = "negotiation_agent"
	KeyGeneralChat           = "general_chat"
	KeyManager               = "manager_agent"
	KeyChartGenerator        = "chart_generator"

	KeyWorker  = "worker"
	KeyUnknown = "unknown"
)

// Identity is the cosmetic status shown for a running agent.
type Identity struct {
	Key               string `mapstructure:"key" json:"key"`
	CanonicalName     string `mapstructure:"canonical_name" json:"canonical_name"`
	StatusDescription string `mapstructure:"status_description" json:"status_description"`
}

var (
	workerIdentity  = Identity{Key: KeyWorker, CanonicalName: "Processing Agent", StatusDescription: "Processing your request"}
	unknownIdentity = Identity{Key: KeyUnknown, CanonicalName: "AI Agent", StatusDescription: "Working on your request"}
)

// Builtin returns the identities known out of the box.
func Builtin() []Identity {
	return []Identity{
		{KeyDecisionMaker, "Chat Decision Maker", "Deciding how to handle your request"},
		{KeyInternalVendorFetcher, "Internal Vendor Fetcher", "Searching approved vendors"},
		{KeyExternalVendorFetcher, "External Vendor Fetcher", "Searching external vendors"},
		{KeyVendorSearch, "Vendor Search", "Looking up vendors"},
		{KeyRFQGenerator, "RFQ Generator", "Drafting the request for quotation"},
		{KeyRFPGenerator, "RFP Generator", "Drafting the request for proposal"},
		{KeyContractGenerator, "Contract Generator", "Drafting the contract"},
		{KeyPricingSuggestion, "Pricing Advisor", "Estimating a fair price"},
		{KeyCertificationChecker, "Certification Checker", "Checking vendor certifications"},
		{KeyNegotiation, "Negotiation Agent", "Preparing negotiation points"},
		{KeyGeneralChat, "General Chat", "Writing a reply"},
		{KeyManager, "Manager Agent", "Coordinating agents"},
		{KeyChartGenerator, "Chart Generator", "Building a chart"},
	}
}

type entry struct {
	fragment string
	identity Identity
}

// Registry classifies tool names by normalized substring containment. The
// longest matching fragment wins.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	worker  string
}

// NewRegistry builds a registry holding the given identities.
func NewRegistry(identities ...Identity) *Registry {
	r := &Registry{worker: KeyWorker}
	for _, id := range identities {
		r.Register(id)
	}
	return r
}

// Register adds or replaces an identity. Its fragment is the normalized key.
func (r *Registry) Register(id Identity) {
	fragment := configutil.NormalizeKey(id.Key)
	if fragment == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].fragment == fragment {
			r.entries[i].identity = id
			return
		}
	}
	r.entries = append(r.entries, entry{fragment: fragment, identity: id})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return len(r.entries[i].fragment) > len(r.entries[j].fragment)
	})
}

// Classify never fails: unknown names fall back to a generic identity.
func (r *Registry) Classify(toolName string) Identity {
	if id, ok := r.lookup(toolName); ok {
		return id
	}
	if strings.Contains(strings.ToLower(toolName), r.worker) {
		return workerIdentity
	}
	return unknownIdentity
}

// IsOrigin reports whether an origin marker such as a payload's "from"
// field names the agent registered under key.
func (r *Registry) IsOrigin(from, key string) bool {
	id, ok := r.lookup(from)
	return ok && id.Key == key
}

// Keys lists registered keys, longest fragment first.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		keys = append(keys, e.identity.Key)
	}
	return keys
}

func (r *Registry) lookup(name string) (Identity, bool) {
	norm := configutil.NormalizeKey(strings.TrimSpace(name))
	if norm == "" {
		return Identity{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if strings.Contains(norm, e.fragment) {
			return e.identity, true
		}
	}
	return Identity{}, false
}

var defaultRegistry = NewRegistry(Builtin()...)

// Default returns the process-wide registry used by Classify.
func Default() *Registry {
	return defaultRegistry
}

// Classify uses the default registry.
func Classify(toolName string) Identity {
	return defaultRegistry.Classify(toolName)
}
