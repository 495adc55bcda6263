package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/procura/pkg/transports"
)

// DialCall records one Dial invocation.
type DialCall struct {
	SessionID  string
	Credential string
}

// Dialer is an in-memory transports.Dialer for tests and frame replay.
// Queued failures are returned first, then queued conns; when both are
// empty a fresh Conn is created.
type Dialer struct {
	mu       sync.Mutex
	failures []error
	conns    []*Conn
	dials    []DialCall
	opened   []*Conn
	notify   chan struct{}
}

func NewDialer() *Dialer {
	return &Dialer{notify: make(chan struct{}, 64)}
}

// Enqueue makes the next Dial return c.
func (d *Dialer) Enqueue(c *Conn) {
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
}

// FailNext makes the next Dial fail with err.
func (d *Dialer) FailNext(err error) {
	d.mu.Lock()
	d.failures = append(d.failures, err)
	d.mu.Unlock()
}

func (d *Dialer) Dial(ctx context.Context, sessionID, credential string) (transports.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials = append(d.dials, DialCall{SessionID: sessionID, Credential: credential})
	var (
		conn *Conn
		err  error
	)
	switch {
	case len(d.failures) > 0:
		err = d.failures[0]
		d.failures = d.failures[1:]
	case len(d.conns) > 0:
		conn = d.conns[0]
		d.conns = d.conns[1:]
	default:
		conn = NewConn()
	}
	if conn != nil {
		d.opened = append(d.opened, conn)
	}
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Dials returns every Dial call so far.
func (d *Dialer) Dials() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DialCall(nil), d.dials...)
}

// Last returns the most recently opened conn.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.opened) == 0 {
		return nil
	}
	return d.opened[len(d.opened)-1]
}

// Dialed is signalled after every Dial call.
func (d *Dialer) Dialed() <-chan struct{} {
	return d.notify
}

type item struct {
	text string
	err  error
}

// Conn is an in-memory transports.Conn. Push and PeerClose script what the
// stream reads; Close records the local close.
type Conn struct {
	items chan item
	done  chan struct{}
	once  sync.Once

	mu          sync.Mutex
	closeCode   int
	closeReason string
	closed      bool
}

func NewConn() *Conn {
	return &Conn{
		items: make(chan item, 256),
		done:  make(chan struct{}),
	}
}

// Push queues an inbound text frame.
func (c *Conn) Push(text string) {
	c.items <- item{text: text}
}

// PeerClose queues a close frame from the remote side.
func (c *Conn) PeerClose(code int, reason string) {
	c.items <- item{err: &transports.CloseError{Code: code, Reason: reason}}
}

// Fail queues a read error without a close frame.
func (c *Conn) Fail(err error) {
	if err == nil {
		err = errors.New("connection reset")
	}
	c.items <- item{err: err}
}

func (c *Conn) Read(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return "", transports.ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", transports.ErrClosed
	case it := <-c.items:
		return it.text, it.err
	}
}

func (c *Conn) Close(code int, reason string) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closeCode = code
		c.closeReason = reason
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// Closed reports whether the local side closed the conn, and with which code.
func (c *Conn) Closed() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeReason
}
