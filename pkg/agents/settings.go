package agents

import (
	"fmt"

	"github.com/harunnryd/procura/pkg/configutil"
)

// DecodeIdentities reads extra registry entries from config, e.g.
//
//	agents:
//	  registry:
//	    - key: supplier_risk_scorer
//	      canonical_name: Supplier Risk Scorer
//	      status_description: Scoring supplier risk
func DecodeIdentities(items []map[string]any) ([]Identity, error) {
	out := make([]Identity, 0, len(items))
	for i, item := range items {
		var id Identity
		if err := configutil.DecodeSettings(item, &id); err != nil {
			return nil, fmt.Errorf("agents.registry[%d]: %w", i, err)
		}
		if err := configutil.RequireString(id.Key, fmt.Sprintf("agents.registry[%d].key", i)); err != nil {
			return nil, err
		}
		if id.CanonicalName == "" {
			id.CanonicalName = id.Key
		}
		if id.StatusDescription == "" {
			id.StatusDescription = unknownIdentity.StatusDescription
		}
		out = append(out, id)
	}
	return out, nil
}

// Extend registers identities on top of the built-in set and returns a new
// registry; the default registry is left untouched.
func Extend(extra ...Identity) *Registry {
	r := NewRegistry(Builtin()...)
	for _, id := range extra {
		r.Register(id)
	}
	return r
}
