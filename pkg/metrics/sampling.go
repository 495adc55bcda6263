package metrics

import (
	"math"
	"sync/atomic"
)

// SamplingObserver forwards roughly rate of the high volume frame events.
// Everything else, state changes and failures included, always passes.
type SamplingObserver struct {
	inner       Observer
	sampleEvery uint64
	counter     uint64
}

var sampled = map[string]struct{}{
	EventFrameIn:      {},
	EventFrameOut:     {},
	EventStageLatency: {},
}

func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	rate = math.Max(0, math.Min(1, rate))
	var every uint64
	if rate > 0 {
		every = uint64(math.Round(1.0 / rate))
		if every == 0 {
			every = 1
		}
	}
	return &SamplingObserver{inner: inner, sampleEvery: every}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if _, ok := sampled[ev.Name]; !ok || s.sampleEvery == 1 {
		s.inner.RecordEvent(ev)
		return
	}
	if s.sampleEvery == 0 {
		return
	}
	if atomic.AddUint64(&s.counter, 1)%s.sampleEvery == 0 {
		s.inner.RecordEvent(ev)
	}
}
