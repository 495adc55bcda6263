// Package stream owns the metrics socket of one chat session. Inbound wire
// frames run through the envelope, decode and route processors and the
// results are fanned out to listeners in arrival order. Abnormal closes are
// retried with linear backoff.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/procura/pkg/agents"
	"github.com/harunnryd/procura/pkg/clock"
	"github.com/harunnryd/procura/pkg/configutil"
	"github.com/harunnryd/procura/pkg/frames"
	"github.com/harunnryd/procura/pkg/metrics"
	"github.com/harunnryd/procura/pkg/pipeline"
	"github.com/harunnryd/procura/pkg/processors"
	"github.com/harunnryd/procura/pkg/resilience"
	"github.com/harunnryd/procura/pkg/router"
	"github.com/harunnryd/procura/pkg/transports"
)

const sourceMetricsSocket = "metrics_ws"

var ErrSessionRequired = errors.New("stream: session id is required")

type Config struct {
	BaseDelayMS   int    `mapstructure:"base_delay_ms"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	UnknownPolicy string `mapstructure:"unknown_policy"`
}

// Options carries the collaborators of a Stream. Only Dialer is required.
type Options struct {
	Dialer   transports.Dialer
	Registry *agents.Registry
	Router   *router.Router
	Clock    clock.Clock
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Listener receives every frame the stream emits, one frame at a time and
// in emission order. A listener may call Connect or Disconnect; frames of the
// replaced connection are not delivered once the call returns.
type Listener func(frames.Frame)

type listenerEntry struct {
	id uint64
	fn Listener
}

type pending struct {
	gen uint64
	f   frames.Frame
}

type Stream struct {
	dialer transports.Dialer
	chain  *pipeline.Chain
	clock  clock.Clock
	obs    metrics.Observer
	log    *slog.Logger
	pts    *frames.PTSGen
	retry  resilience.RetryPolicy

	mu         sync.Mutex
	state      State
	gen        uint64
	sessionID  string
	credential string
	traceID    string
	conn       transports.Conn
	cancel     context.CancelFunc
	timer      clock.Timer
	attempt    int

	// queue holds frames waiting for delivery. The goroutine that finds
	// delivering unset drains it; others only append.
	queue      []pending
	delivering bool

	lmu       sync.RWMutex
	listeners []listenerEntry
	nextID    uint64
}

func New(cfg Config, opts Options) *Stream {
	if opts.Registry == nil {
		opts.Registry = agents.Default()
	}
	if opts.Router == nil {
		opts.Router = router.New(opts.Registry, router.WithLogger(opts.Logger))
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	chain := pipeline.NewChain(
		processors.NewEnvelopeProcessor(opts.Registry, opts.Logger),
		processors.NewDecodeProcessor(opts.Observer, opts.Clock.Now, opts.Logger),
		processors.NewRouteProcessor(opts.Router, processors.ParseUnknownPolicy(cfg.UnknownPolicy), opts.Observer, opts.Clock.Now, opts.Logger),
	)
	chain.SetObserver(opts.Observer)
	chain.SetClock(opts.Clock.Now)

	return &Stream{
		dialer: opts.Dialer,
		chain:  chain,
		clock:  opts.Clock,
		obs:    opts.Observer,
		log:    opts.Logger,
		pts:    frames.NewPTSGen(opts.Clock.Now),
		retry:  resilience.NewRetryPolicy(cfg.MaxAttempts, configutil.Millis(cfg.BaseDelayMS, 0)),
		state:  Idle,
	}
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the session the stream is bound to, if any.
func (s *Stream) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// AddListener registers fn and returns a function that removes it.
func (s *Stream) AddListener(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.lmu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			defer s.lmu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Connect opens the metrics socket of sessionID. It is a no-op while the
// same session is open or being (re)connected. A stream bound to another
// session is closed first. Dial failures enter the reconnect policy and are
// not returned.
func (s *Stream) Connect(ctx context.Context, sessionID, credential string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrSessionRequired
	}
	if s.dialer == nil {
		return fmt.Errorf("stream: no dialer configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.sessionID == sessionID {
		switch s.state {
		case Open, Connecting, Reconnecting:
			s.mu.Unlock()
			return nil
		}
	}
	old := s.teardownLocked("session_switch")
	s.sessionID = sessionID
	s.credential = credential
	s.traceID = ""
	s.attempt = 0
	s.gen++
	gen := s.gen
	s.setStateLocked(Connecting)
	s.mu.Unlock()

	if old != nil {
		s.closeConn(old, "session switch")
	}
	return s.dial(ctx, gen)
}

// Disconnect closes the connection normally and cancels any pending
// reconnect. No listener is invoked for this connection once it returns.
// It is safe to call from a listener.
func (s *Stream) Disconnect() {
	s.mu.Lock()
	s.gen++
	sessionID := s.sessionID
	conn := s.teardownLocked("disconnect")
	s.sessionID = ""
	s.credential = ""
	s.mu.Unlock()

	if conn != nil {
		s.closeConn(conn, "client disconnect")
	}
	if sessionID != "" {
		s.pts.Forget(sessionID)
		s.log.Info("stream_disconnected", "session_id", sessionID)
	}
}

// teardownLocked stops the timer, cancels in-flight work and moves the
// stream to Idle without emitting. The caller closes the returned conn.
func (s *Stream) teardownLocked(reason string) transports.Conn {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	conn := s.conn
	s.conn = nil
	switch s.state {
	case Idle:
	case Open:
		s.setStateLocked(Closing)
		s.setStateLocked(Idle)
	case Closing, Connecting, Faulted, Reconnecting:
		s.setStateLocked(Idle)
	}
	if conn != nil {
		s.log.Debug("stream_teardown", "session_id", s.sessionID, "reason", reason)
	}
	return conn
}

func (s *Stream) dial(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	sessionID, credential := s.sessionID, s.credential
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, sessionID, credential)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if conn != nil {
			s.closeConn(conn, "superseded")
		}
		return nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			s.setStateLocked(Idle)
			s.mu.Unlock()
			return ctxErr
		}
		s.log.Warn("stream_dial_failed", "session_id", sessionID, "attempt", s.attempt, "error", err)
		s.setStateLocked(Faulted)
		f, delay := s.scheduleLocked(err.Error(), 0)
		s.mu.Unlock()
		s.afterFault(gen, f, delay)
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.attempt = 0
	s.traceID = uuid.NewString()
	s.setStateLocked(Open)
	connected := frames.NewSystemFrame(sessionID, s.pts.Next(sessionID), frames.SystemConnected, s.baseMetaLocked())
	s.mu.Unlock()

	s.log.Info("stream_connected", "session_id", sessionID)
	s.emit(gen, connected)
	go s.readLoop(runCtx, gen, conn)
	return nil
}

func (s *Stream) readLoop(ctx context.Context, gen uint64, conn transports.Conn) {
	for {
		text, err := conn.Read(ctx)
		if err != nil {
			s.handleReadError(gen, conn, err)
			return
		}
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		sessionID := s.sessionID
		meta := s.baseMetaLocked()
		s.mu.Unlock()

		raw := frames.NewRawFrame(sessionID, s.pts.Next(sessionID), text, meta)
		for _, out := range s.chain.Run(raw) {
			s.deliver(gen, out)
		}
	}
}

func (s *Stream) handleReadError(gen uint64, conn transports.Conn, err error) {
	s.mu.Lock()
	if s.gen != gen || s.conn != conn {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.conn = nil
	sessionID := s.sessionID

	code, hasCode := transports.CloseCode(err)
	if hasCode && code == transports.CloseNormal {
		s.setStateLocked(Closing)
		s.setStateLocked(Idle)
		meta := s.baseMetaLocked()
		meta[frames.MetaCloseCode] = strconv.Itoa(code)
		meta[frames.MetaReason] = "peer_closed"
		f := frames.NewSystemFrame(sessionID, s.pts.Next(sessionID), frames.SystemDisconnected, meta)
		s.mu.Unlock()

		s.log.Info("stream_closed_by_peer", "session_id", sessionID)
		s.closeConn(conn, "")
		s.emit(gen, f)
		return
	}

	if !hasCode {
		code = transports.CloseAbnormal
	}
	s.log.Warn("stream_faulted", "session_id", sessionID, "close_code", code, "error", err)
	s.setStateLocked(Faulted)
	f, delay := s.scheduleLocked(err.Error(), code)
	s.mu.Unlock()

	s.closeConn(conn, "")
	s.afterFault(gen, f, delay)
}

// scheduleLocked moves a faulted stream to Reconnecting with a delay of
// attempt × base delay, or to Idle once the attempts are exhausted. It
// returns the frame to emit and the delay to arm, zero when giving up.
func (s *Stream) scheduleLocked(reason string, code int) (frames.Frame, time.Duration) {
	sessionID := s.sessionID
	s.attempt++
	meta := s.baseMetaLocked()
	meta[frames.MetaAttempt] = strconv.Itoa(s.attempt)
	meta[frames.MetaReason] = reason
	if code != 0 {
		meta[frames.MetaCloseCode] = strconv.Itoa(code)
	}

	if !s.retry.Allows(s.attempt) {
		s.setStateLocked(Idle)
		meta[frames.MetaReason] = "retries_exhausted"
		s.log.Warn("stream_retries_exhausted", "session_id", sessionID, "max_attempts", s.retry.MaxRetries)
		return frames.NewSystemFrame(sessionID, s.pts.Next(sessionID), frames.SystemDisconnected, meta), 0
	}

	delay := s.retry.Delay(s.attempt)
	meta[frames.MetaDelayMS] = strconv.FormatInt(delay.Milliseconds(), 10)
	s.setStateLocked(Reconnecting)
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventReconnectScheduled,
		Time:  s.clock.Now(),
		Value: float64(delay.Milliseconds()),
		Tags: map[string]string{
			frames.MetaSessionID: sessionID,
			frames.MetaAttempt:   strconv.Itoa(s.attempt),
		},
	})
	s.log.Info("stream_reconnect_scheduled", "session_id", sessionID, "attempt", s.attempt, "delay_ms", delay.Milliseconds())
	return frames.NewSystemFrame(sessionID, s.pts.Next(sessionID), frames.SystemReconnecting, meta), delay
}

// afterFault emits f and then arms the reconnect timer, so listeners see
// the reconnecting frame before any frame of the next attempt.
func (s *Stream) afterFault(gen uint64, f frames.Frame, delay time.Duration) {
	s.emit(gen, f)
	if delay <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != Reconnecting || s.timer != nil {
		return
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.reconnect(gen) })
}

func (s *Stream) reconnect(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != Reconnecting {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.setStateLocked(Connecting)
	s.mu.Unlock()

	_ = s.dial(ctx, gen)
}

func (s *Stream) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		s.log.Error("stream_invalid_transition", "session_id", s.sessionID, "from", from.String(), "to", to.String())
		return
	}
	s.state = to
	s.log.Debug("stream_state", "session_id", s.sessionID, "from", from.String(), "to", to.String())
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventStreamState,
		Time: s.clock.Now(),
		Tags: map[string]string{
			frames.MetaSessionID: s.sessionID,
			"from":               from.String(),
			"to":                 to.String(),
		},
	})
}

func (s *Stream) baseMetaLocked() map[string]string {
	meta := map[string]string{frames.MetaSource: sourceMetricsSocket}
	if s.traceID != "" {
		meta[frames.MetaTraceID] = s.traceID
	}
	return meta
}

func (s *Stream) deliver(gen uint64, f frames.Frame) {
	if af, ok := f.(frames.AgentFrame); ok {
		meta := af.Meta()
		s.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventAgentLifecycle,
			Time: s.clock.Now(),
			Tags: map[string]string{
				frames.MetaSessionID: meta[frames.MetaSessionID],
				frames.MetaAgent:     af.Agent(),
				frames.MetaAgentName: meta[frames.MetaAgentName],
				"phase":              string(af.Phase()),
			},
		})
	}
	s.emit(gen, f)
}

// emit queues f for delivery. If no other goroutine is delivering, the
// caller drains the queue itself, so frames are delivered synchronously
// unless a delivery is already in progress, including a reentrant emit from
// a listener.
func (s *Stream) emit(gen uint64, f frames.Frame) {
	if f == nil {
		return
	}
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, pending{gen: gen, f: f})
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue[0] = pending{}
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.fanOut(next)
		s.mu.Lock()
	}
	s.queue = nil
	s.delivering = false
	s.mu.Unlock()
}

// fanOut calls the listeners in registration order. The generation is
// checked before every call, so a listener that disconnects or switches
// session stops delivery of the current frame to the rest.
func (s *Stream) fanOut(p pending) {
	s.lmu.RLock()
	listeners := append([]listenerEntry(nil), s.listeners...)
	s.lmu.RUnlock()
	for _, l := range listeners {
		if !s.isCurrent(p.gen) {
			return
		}
		s.call(l.fn, p.f)
	}
}

func (s *Stream) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Stream) call(fn Listener, f frames.Frame) {
	defer func() {
		if r := recover(); r != nil {
			sessionID := frames.SessionID(f)
			s.log.Error("listener_panic", "session_id", sessionID, "kind", f.Kind(), "panic", fmt.Sprint(r))
			s.obs.RecordEvent(metrics.MetricsEvent{
				Name: metrics.EventListenerPanic,
				Time: s.clock.Now(),
				Tags: map[string]string{frames.MetaSessionID: sessionID, "kind": string(f.Kind())},
			})
		}
	}()
	fn(f)
}

func (s *Stream) closeConn(conn transports.Conn, reason string) {
	if err := conn.Close(transports.CloseNormal, reason); err != nil {
		s.log.Debug("stream_close_failed", "error", err)
	}
}
