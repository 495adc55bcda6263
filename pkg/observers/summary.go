package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/metrics"
)

// SessionSummary aggregates what happened on one session stream.
type SessionSummary struct {
	SessionID      string         `json:"session_id"`
	FramesIn       int            `json:"frames_in"`
	DecodeFailures int            `json:"decode_failures"`
	Intents        map[string]int `json:"intents"`
	Reconnects     int            `json:"reconnects"`
	RecordedAtUTC  string         `json:"recorded_at_utc"`
}

// SummaryObserver keeps a SessionSummary per session and writes them as
// <session>.summary.json into dir on Close.
type SummaryObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*SessionSummary
	now   func() time.Time
}

func NewSummaryObserver(dir string) *SummaryObserver {
	return &SummaryObserver{dir: dir, stats: make(map[string]*SessionSummary), now: time.Now}
}

func (o *SummaryObserver) RecordEvent(ev metrics.MetricsEvent) {
	if ev.Tags == nil {
		return
	}
	id := ev.Tags[frames.MetaSessionID]
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[id]
	if stat == nil {
		stat = &SessionSummary{SessionID: id, Intents: map[string]int{}}
		o.stats[id] = stat
	}
	switch ev.Name {
	case metrics.EventFrameIn:
		if ev.Tags["kind"] == string(frames.KindRaw) {
			stat.FramesIn++
		}
	case metrics.EventDecodeFailed:
		stat.DecodeFailures++
	case metrics.EventRouted, metrics.EventUnknownIntent:
		stat.Intents[ev.Tags[frames.MetaIntent]]++
	case metrics.EventReconnectScheduled:
		stat.Reconnects++
	}
}

// Summary returns a copy of the summary for a session.
func (o *SummaryObserver) Summary(sessionID string) (SessionSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stat, ok := o.stats[sessionID]
	if !ok {
		return SessionSummary{}, false
	}
	out := *stat
	out.Intents = make(map[string]int, len(stat.Intents))
	for k, v := range stat.Intents {
		out.Intents[k] = v
	}
	return out, true
}

func (o *SummaryObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = o.now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".summary.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

var _ metrics.Observer = (*SummaryObserver)(nil)
