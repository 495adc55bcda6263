package transports

import (
	"context"
	"errors"
	"fmt"
)

// WebSocket close codes the stream cares about.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
)

// ErrClosed is returned by Read after the local side closed the connection.
var ErrClosed = errors.New("transport: connection closed")

// Dialer opens the duplex connection of one session.
type Dialer interface {
	Dial(ctx context.Context, sessionID, credential string) (Conn, error)
}

// Conn yields inbound text frames. A close frame from the peer surfaces as
// a *CloseError from Read; any other Read error means the connection was
// lost without one.
type Conn interface {
	Read(ctx context.Context) (string, error)
	Close(code int, reason string) error
}

// CloseError reports the close frame sent by the peer.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transport closed with code %d", e.Code)
	}
	return fmt.Sprintf("transport closed with code %d: %s", e.Code, e.Reason)
}

// Normal reports a clean close (1000).
func (e *CloseError) Normal() bool {
	return e.Code == CloseNormal
}

// CloseCode extracts the close code carried by err, if any.
func CloseCode(err error) (int, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}
