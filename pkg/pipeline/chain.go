package pipeline

import (
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/metrics"
)

// Chain runs frames through its processors synchronously, in order.
// Outputs keep the order in which their inputs arrived.
type Chain struct {
	procs []FrameProcessor
	obs   metrics.Observer
	now   func() time.Time
}

func NewChain(procs ...FrameProcessor) *Chain {
	c := &Chain{obs: metrics.NoopObserver{}, now: time.Now}
	for _, p := range procs {
		if p != nil {
			c.procs = append(c.procs, p)
		}
	}
	logPipeline(c.procs)
	return c
}

func (c *Chain) SetObserver(obs metrics.Observer) {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	c.obs = obs
}

// SetClock replaces the time source used for metric timestamps.
func (c *Chain) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

func (c *Chain) Processors() []FrameProcessor {
	return append([]FrameProcessor(nil), c.procs...)
}

// Run returns the frames that made it through every stage.
func (c *Chain) Run(f frames.Frame) []frames.Frame {
	if f == nil {
		return nil
	}
	c.recordIn(f)
	out := []frames.Frame{f}
	for _, p := range c.procs {
		var next []frames.Frame
		for _, cur := range out {
			start := c.now()
			r, err := p.Process(cur)
			if err != nil {
				c.recordDrop(p.Name(), cur, err)
				continue
			}
			c.recordStage(p.Name(), cur, start)
			if len(r) == 0 {
				c.recordDrop(p.Name(), cur, nil)
				continue
			}
			next = append(next, r...)
		}
		out = next
		if len(out) == 0 {
			return nil
		}
	}
	for _, e := range out {
		c.recordOut(e)
	}
	return out
}

func (c *Chain) recordStage(name string, f frames.Frame, start time.Time) {
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:  "stage_latency_us",
		Time:  c.now(),
		Value: float64(c.now().Sub(start).Microseconds()),
		Tags: map[string]string{
			"processor":          name,
			frames.MetaSessionID: metaValue(f, frames.MetaSessionID),
			"kind":               string(f.Kind()),
		},
	})
}

func (c *Chain) recordIn(f frames.Frame) {
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name: "frame_in",
		Time: c.now(),
		Tags: frameTags(f),
	})
}

func (c *Chain) recordOut(f frames.Frame) {
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name: "frame_out",
		Time: c.now(),
		Tags: frameTags(f),
	})
}

func (c *Chain) recordDrop(stage string, f frames.Frame, err error) {
	tags := frameTags(f)
	tags["processor"] = stage
	fields := map[string]any{}
	if err != nil {
		fields["error"] = err.Error()
	}
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:   "frame_dropped",
		Time:   c.now(),
		Tags:   tags,
		Fields: fields,
	})
}

func frameTags(f frames.Frame) map[string]string {
	meta := f.Meta()
	tags := map[string]string{
		"kind":               string(f.Kind()),
		frames.MetaSessionID: meta[frames.MetaSessionID],
	}
	for _, key := range []string{frames.MetaTraceID, frames.MetaToolName, frames.MetaIntent, frames.MetaAgent} {
		if v := meta[key]; v != "" {
			tags[key] = v
		}
	}
	return tags
}

func metaValue(f frames.Frame, key string) string {
	if f == nil {
		return ""
	}
	return f.Meta()[key]
}

func logPipeline(procs []FrameProcessor) {
	if len(procs) == 0 {
		return
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		names = append(names, p.Name())
	}
	slog.Debug("pipeline", "order", strings.Join(names, " -> "))
}
