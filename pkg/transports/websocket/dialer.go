// Package websocket connects session streams to the agent platform's
// metrics socket with gorilla/websocket.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/procura/pkg/errorsx"
	"github.com/harunnryd/procura/pkg/transports"
)

type Config struct {
	URL              string `mapstructure:"url"`
	SessionParam     string `mapstructure:"session_param"`
	CredentialParam  string `mapstructure:"credential_param"`
	CredentialHeader string `mapstructure:"credential_header"`
	HandshakeMS      int    `mapstructure:"handshake_ms"`
	PingIntervalMS   int    `mapstructure:"ping_interval_ms"`
	PongWaitMS       int    `mapstructure:"pong_wait_ms"`
	ReadLimitBytes   int64  `mapstructure:"read_limit_bytes"`
	Buffer           int    `mapstructure:"buffer"`
}

func (c Config) withDefaults() Config {
	if c.SessionParam == "" {
		c.SessionParam = "session_id"
	}
	if c.CredentialParam == "" {
		c.CredentialParam = "api_key"
	}
	if c.CredentialHeader == "" {
		c.CredentialHeader = "X-API-Key"
	}
	if c.HandshakeMS <= 0 {
		c.HandshakeMS = 10000
	}
	if c.PingIntervalMS <= 0 {
		c.PingIntervalMS = 20000
	}
	if c.PongWaitMS <= 0 {
		c.PongWaitMS = 2 * c.PingIntervalMS
	}
	if c.ReadLimitBytes <= 0 {
		c.ReadLimitBytes = 4 << 20
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	return c
}

// Dialer implements transports.Dialer.
type Dialer struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger
}

func NewDialer(cfg Config, log *slog.Logger) *Dialer {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Dialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: time.Duration(cfg.HandshakeMS) * time.Millisecond,
		},
		log: log,
	}
}

// Endpoint builds the socket URL of a session. The credential is sent both
// as a query parameter and as a header since deployments differ.
func (d *Dialer) Endpoint(sessionID, credential string) (string, error) {
	if strings.TrimSpace(d.cfg.URL) == "" {
		return "", errors.New("websocket url is required")
	}
	u, err := url.Parse(strings.ReplaceAll(d.cfg.URL, "{session_id}", url.PathEscape(sessionID)))
	if err != nil {
		return "", err
	}
	q := u.Query()
	if !strings.Contains(d.cfg.URL, "{session_id}") {
		q.Set(d.cfg.SessionParam, sessionID)
	}
	if credential != "" {
		q.Set(d.cfg.CredentialParam, credential)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Dialer) Dial(ctx context.Context, sessionID, credential string) (transports.Conn, error) {
	endpoint, err := d.Endpoint(sessionID, credential)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTransportConnect)
	}
	header := http.Header{}
	if credential != "" {
		header.Set(d.cfg.CredentialHeader, credential)
	}
	ws, resp, err := d.dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, errorsx.Wrapf(err, errorsx.ReasonTransportConnect, "dial session %s (status %d)", sessionID, status)
	}
	c := newConn(ws, d.cfg, d.log.With("session_id", sessionID))
	d.log.Debug("ws_connected", "session_id", sessionID)
	return c, nil
}

type message struct {
	text string
	err  error
}

// conn reads on its own goroutine so Read can honour ctx.
type conn struct {
	ws       *websocket.Conn
	cfg      Config
	log      *slog.Logger
	incoming chan message
	done     chan struct{}
	once     sync.Once
}

func newConn(ws *websocket.Conn, cfg Config, log *slog.Logger) *conn {
	c := &conn{
		ws:       ws,
		cfg:      cfg,
		log:      log,
		incoming: make(chan message, cfg.Buffer),
		done:     make(chan struct{}),
	}
	pongWait := time.Duration(cfg.PongWaitMS) * time.Millisecond
	ws.SetReadLimit(cfg.ReadLimitBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.readLoop(pongWait)
	go c.pingLoop()
	return c
}

func (c *conn) readLoop(pongWait time.Duration) {
	defer close(c.incoming)
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.deliver(message{err: mapReadError(err)})
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if !c.deliver(message{text: string(data)}) {
			return
		}
	}
}

func (c *conn) deliver(m message) bool {
	select {
	case c.incoming <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(time.Duration(c.cfg.PingIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Duration(c.cfg.HandshakeMS) * time.Millisecond)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("ws_ping_failed", "error", err)
				return
			}
		}
	}
}

func (c *conn) Read(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", transports.ErrClosed
	case m, ok := <-c.incoming:
		if !ok {
			return "", transports.ErrClosed
		}
		return m.text, m.err
	}
}

func (c *conn) Close(code int, reason string) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func mapReadError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &transports.CloseError{Code: ce.Code, Reason: ce.Text}
	}
	return errorsx.Wrap(err, errorsx.ReasonTransportRead)
}
