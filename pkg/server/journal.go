package server

import (
	"sync"
	"time"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/router"
)

const defaultJournalSize = 256

// Entry is one journaled frame as served by the events endpoint.
type Entry struct {
	Seq         uint64            `json:"seq"`
	Kind        frames.Kind       `json:"kind"`
	Name        string            `json:"name,omitempty"`
	Intent      router.Intent     `json:"intent,omitempty"`
	Agent       string            `json:"agent,omitempty"`
	AgentName   string            `json:"agent_name,omitempty"`
	AgentStatus string            `json:"agent_status,omitempty"`
	Event       router.Event      `json:"event,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	At          time.Time         `json:"at"`
}

// Journal keeps the most recent entries of a session in a ring buffer.
// Sequence numbers start at 1 and keep growing after old entries are
// overwritten.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	size    int
	seq     uint64
}

func NewJournal(size int) *Journal {
	if size <= 0 {
		size = defaultJournalSize
	}
	return &Journal{entries: make([]Entry, 0, size), size: size}
}

func (j *Journal) Append(f frames.Frame, at time.Time) Entry {
	e := entryFor(f, at)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	e.Seq = j.seq
	if len(j.entries) < j.size {
		j.entries = append(j.entries, e)
		return e
	}
	j.entries[j.start] = e
	j.start = (j.start + 1) % j.size
	return e
}

// Since returns up to limit entries with a sequence number above after,
// oldest first. A non-positive limit returns everything retained.
func (j *Journal) Since(after uint64, limit int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, 0, len(j.entries))
	for i := 0; i < len(j.entries); i++ {
		e := j.entries[(j.start+i)%len(j.entries)]
		if e.Seq <= after {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// LastSeq returns the sequence number of the newest entry, 0 when empty.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

func entryFor(f frames.Frame, at time.Time) Entry {
	meta := f.Meta()
	e := Entry{
		Kind:        f.Kind(),
		Agent:       meta[frames.MetaAgent],
		AgentName:   meta[frames.MetaAgentName],
		AgentStatus: meta[frames.MetaAgentStatus],
		Meta:        meta,
		At:          at.UTC(),
	}
	switch v := f.(type) {
	case frames.SystemFrame:
		e.Name = v.Name()
	case frames.AgentFrame:
		e.Name = string(v.Phase())
	case frames.OutputFrame:
		e.Event = v.Event()
		if v.Event() != nil {
			e.Intent = v.Event().Intent()
		}
	}
	return e
}
