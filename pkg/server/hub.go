package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/stream"
)

var ErrDraining = errors.New("server: draining, no new sessions")

// StreamFactory builds the stream of a new session.
type StreamFactory func(sessionID string) *stream.Stream

type Session struct {
	ID      string
	Stream  *stream.Stream
	Journal *Journal
	Created time.Time

	unsubscribe func()
}

// Hub owns one Stream and one Journal per session.
type Hub struct {
	sessions    sync.Map
	count       atomic.Int64
	factory     StreamFactory
	draining    atomic.Bool
	journalSize int
	now         func() time.Time
	log         *slog.Logger

	hookMu   sync.RWMutex
	onRemove []func(sessionID string)
}

func NewHub(factory StreamFactory, journalSize int, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{factory: factory, journalSize: journalSize, now: time.Now, log: log}
}

// OnRemove registers fn to run after a session is removed.
func (h *Hub) OnRemove(fn func(sessionID string)) {
	if fn == nil {
		return
	}
	h.hookMu.Lock()
	h.onRemove = append(h.onRemove, fn)
	h.hookMu.Unlock()
}

func (h *Hub) GetOrCreate(sessionID string) (*Session, bool, error) {
	if sessionID == "" {
		return nil, false, stream.ErrSessionRequired
	}
	if v, ok := h.sessions.Load(sessionID); ok {
		return v.(*Session), false, nil
	}
	if h.Draining() {
		return nil, false, ErrDraining
	}
	st := h.factory(sessionID)
	journal := NewJournal(h.journalSize)
	sess := &Session{
		ID:      sessionID,
		Stream:  st,
		Journal: journal,
		Created: h.now(),
	}
	sess.unsubscribe = st.AddListener(func(f frames.Frame) {
		journal.Append(f, h.now())
	})
	actual, loaded := h.sessions.LoadOrStore(sessionID, sess)
	if loaded {
		sess.unsubscribe()
		return actual.(*Session), false, nil
	}
	h.count.Add(1)
	h.log.Info("session_created", "session_id", sessionID)
	return sess, true, nil
}

// Connect creates the session if needed and connects its stream.
func (h *Hub) Connect(ctx context.Context, sessionID, credential string) (*Session, error) {
	sess, _, err := h.GetOrCreate(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Stream.Connect(ctx, sessionID, credential); err != nil {
		return nil, err
	}
	return sess, nil
}

func (h *Hub) Get(sessionID string) (*Session, bool) {
	if v, ok := h.sessions.Load(sessionID); ok {
		return v.(*Session), true
	}
	return nil, false
}

// Remove disconnects the session and forgets it.
func (h *Hub) Remove(sessionID string) bool {
	v, ok := h.sessions.LoadAndDelete(sessionID)
	if !ok {
		return false
	}
	sess := v.(*Session)
	sess.Stream.Disconnect()
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	h.count.Add(-1)
	h.hookMu.RLock()
	hooks := append([]func(string){}, h.onRemove...)
	h.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(sessionID)
	}
	h.log.Info("session_removed", "session_id", sessionID)
	return true
}

func (h *Hub) CloseAll() {
	h.sessions.Range(func(key, _ any) bool {
		if id, ok := key.(string); ok {
			h.Remove(id)
		}
		return true
	})
}

func (h *Hub) Count() int64 {
	return h.count.Load()
}

func (h *Hub) SetDraining(v bool) {
	h.draining.Store(v)
}

func (h *Hub) Draining() bool {
	return h.draining.Load()
}

// Drain refuses new sessions and disconnects the existing ones, waiting
// until the hub is empty or ctx ends.
func (h *Hub) Drain(ctx context.Context) error {
	h.SetDraining(true)
	h.CloseAll()
	if !h.WaitForEmpty(ctx, 50*time.Millisecond) {
		return ctx.Err()
	}
	return nil
}

func (h *Hub) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if h.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
