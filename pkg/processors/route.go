package processors

import (
	"log/slog"
	"time"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/metrics"
	"github.com/harunnryd/procura/pkg/pipeline"
	"github.com/harunnryd/procura/pkg/router"
)

// UnknownPolicy decides what happens to payloads no routing rule matches.
type UnknownPolicy string

const (
	// UnknownSurface emits them as router.Unknown outputs.
	UnknownSurface UnknownPolicy = "surface"
	// UnknownLog logs them at warn and drops them.
	UnknownLog UnknownPolicy = "log"
)

// ParseUnknownPolicy falls back to UnknownSurface for unrecognized values.
func ParseUnknownPolicy(v string) UnknownPolicy {
	if UnknownPolicy(v) == UnknownLog {
		return UnknownLog
	}
	return UnknownSurface
}

// RouteProcessor turns decoded payloads into output frames.
type RouteProcessor struct {
	router *router.Router
	policy UnknownPolicy
	obs    metrics.Observer
	now    func() time.Time
	log    *slog.Logger
}

// NewRouteProcessor stamps routing metrics with now, or time.Now when nil.
func NewRouteProcessor(r *router.Router, policy UnknownPolicy, obs metrics.Observer, now func() time.Time, log *slog.Logger) *RouteProcessor {
	if r == nil {
		r = router.New(nil)
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &RouteProcessor{router: r, policy: ParseUnknownPolicy(string(policy)), obs: obs, now: now, log: log}
}

func (p *RouteProcessor) Name() string { return "route_processor" }

func (p *RouteProcessor) Process(f frames.Frame) ([]frames.Frame, error) {
	if f.Kind() != frames.KindDecoded {
		return []frames.Frame{f}, nil
	}
	df := f.(frames.DecodedFrame)
	meta := df.Meta()
	sessionID := meta[frames.MetaSessionID]

	ev := p.router.Route(df.Payload())
	tags := map[string]string{
		frames.MetaSessionID: sessionID,
		frames.MetaIntent:    string(ev.Intent()),
		frames.MetaToolName:  df.ToolName(),
	}
	if ev.Intent() == router.IntentUnknown {
		p.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventUnknownIntent, Time: p.now(), Tags: tags})
		if p.policy == UnknownLog {
			p.log.Warn("route_unknown_dropped", "session_id", sessionID, "tool_name", df.ToolName())
			return nil, nil
		}
	} else {
		p.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventRouted, Time: p.now(), Tags: tags})
	}
	p.log.Debug("routed", "session_id", sessionID, "intent", ev.Intent(), "agent_name", meta[frames.MetaAgentName])
	return []frames.Frame{frames.NewOutputFrame(sessionID, df.PTS(), ev, meta)}, nil
}

var _ pipeline.FrameProcessor = (*RouteProcessor)(nil)
