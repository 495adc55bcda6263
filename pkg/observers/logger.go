package observers

import (
	"context"
	"log/slog"

	"github.com/harunnryd/procura/pkg/metrics"
)

// LoggerObserver mirrors metric events into the structured log. Failures
// log at warn, everything else at debug.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

var warnEvents = map[string]struct{}{
	metrics.EventListenerPanic: {},
	metrics.EventUnknownIntent: {},
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Float64("value", ev.Value),
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	level := slog.LevelDebug
	if _, ok := warnEvents[ev.Name]; ok {
		level = slog.LevelWarn
	}
	o.log.LogAttrs(context.Background(), level, "metrics", attrs...)
}

type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, obs := range list {
		if obs != nil {
			m.list = append(m.list, obs)
		}
	}
	return m
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		obs.RecordEvent(ev)
	}
}

// Len reports how many observers are attached.
func (m *MultiObserver) Len() int {
	return len(m.list)
}
