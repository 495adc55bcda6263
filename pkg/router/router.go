// Package router turns decoded agent payloads into typed events by
// sniffing their shape against an ordered rule table.
package router

import (
	"log/slog"

	"github.com/harunnryd/procura/pkg/agents"
)

// Rule pairs a structural predicate with the constructor of its variant.
// Rules are evaluated in order and the first match wins.
type Rule struct {
	Intent Intent
	Match  func(payload map[string]any) bool
	Build  func(payload map[string]any) (Event, error)
}

// Router applies a rule table to payloads.
type Router struct {
	rules  []Rule
	logger *slog.Logger
}

type Option func(*Router)

// WithLogger sets the logger used for partially decoded payloads.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New builds a router whose origin markers are resolved through registry.
// A nil registry uses agents.Default().
func New(registry *agents.Registry, opts ...Option) *Router {
	if registry == nil {
		registry = agents.Default()
	}
	r := &Router{rules: Rules(registry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route never fails. Payloads no rule recognizes, including non-objects,
// come back as *Unknown.
func (r *Router) Route(payload any) Event {
	obj, ok := payload.(map[string]any)
	if !ok {
		return &Unknown{Raw: payload}
	}
	var ev Event
	for _, rule := range r.rules {
		if !rule.Match(obj) {
			continue
		}
		built, err := rule.Build(obj)
		if err != nil {
			r.log().Warn("route_partial_decode", "intent", rule.Intent, "error", err)
		}
		if built != nil {
			ev = built
			break
		}
	}
	if ev == nil {
		ev = &Unknown{Raw: obj}
	}
	if ev.Intent() != IntentRfpData {
		if msg, ok := obj["message"].(string); ok && msg != "" {
			if n, ok := ev.(narrator); ok {
				n.narrate(msg)
			}
		}
	}
	return ev
}

func (r *Router) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

var defaultRouter = New(nil)

// Route uses a router backed by the default agent registry.
func Route(payload any) Event {
	return defaultRouter.Route(payload)
}
