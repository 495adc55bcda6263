package observers

import (
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/metrics"
	"github.com/harunnryd/procura/pkg/redact"
)

// TimelineObserver appends every event of a session to <session>.jsonl in
// dir, giving a replayable trace of what the stream saw and did.
type TimelineObserver struct {
	dir   string
	mu    sync.Mutex
	files map[string]*os.File
}

func NewTimelineObserver(dir string) *TimelineObserver {
	return &TimelineObserver{dir: dir, files: make(map[string]*os.File)}
}

func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" || ev.Tags == nil {
		return
	}
	sessionID := ev.Tags[frames.MetaSessionID]
	traceID := ev.Tags[frames.MetaTraceID]
	if sessionID == "" {
		return
	}
	entry := timelineEvent{
		Time:      ev.Time.UTC(),
		Event:     mapEventName(ev),
		SessionID: sessionID,
		TraceID:   traceID,
		Value:     ev.Value,
		Tags:      maps.Clone(ev.Tags),
		Fields:    sanitizeFields(ev.Fields),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	f := o.fileForLocked(sessionID)
	if f == nil {
		return
	}
	_, _ = f.Write(append(line, '\n'))
}

// CloseSession closes the file of a finished session.
func (o *TimelineObserver) CloseSession(sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	safe := sanitizeID(sessionID)
	f := o.files[safe]
	if f == nil {
		return nil
	}
	delete(o.files, safe)
	return f.Close()
}

func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	o.files = make(map[string]*os.File)
	return err
}

type timelineEvent struct {
	Time      time.Time         `json:"time"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	TraceID   string            `json:"trace_id,omitempty"`
	Value     float64           `json:"value,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
}

func (o *TimelineObserver) fileForLocked(id string) *os.File {
	safe := sanitizeID(id)
	if safe == "" {
		return nil
	}
	if f := o.files[safe]; f != nil {
		return f
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	path := filepath.Join(o.dir, safe+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	o.files[safe] = f
	return f
}

// mapEventName names lifecycle events after their phase so a timeline
// reads agent_start ... agent_end.
func mapEventName(ev metrics.MetricsEvent) string {
	if ev.Name == metrics.EventAgentLifecycle && ev.Tags["phase"] != "" {
		return ev.Tags["phase"]
	}
	if ev.Name == metrics.EventRouted && ev.Tags[frames.MetaIntent] != "" {
		return "routed_" + ev.Tags[frames.MetaIntent]
	}
	return ev.Name
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	// session ids come from URLs; keep them to a safe file name alphabet
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) || strings.ContainsRune("-_.", r) {
			return r
		}
		return '_'
	}, id)
}

func sanitizeFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = redact.Snippet(s)
			continue
		}
		out[k] = v
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
