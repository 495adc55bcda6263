package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/procura/pkg/errorsx"
	"github.com/harunnryd/procura/pkg/transports"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialReadsFramesAndPeerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotHeader := make(chan string, 1)
	gotQuery := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader <- r.Header.Get("X-API-Key")
		gotQuery <- r.URL.Query().Get("session_id")
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"agent_start","agent_name":"a"}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"agent_end","agent_name":"a"}`))
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4001, "session expired"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	d := NewDialer(Config{URL: wsURL(srv) + "/metrics"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, "sess-1", "secret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(transports.CloseNormal, "")

	if h := <-gotHeader; h != "secret" {
		t.Fatalf("unexpected header %q", h)
	}
	if q := <-gotQuery; q != "sess-1" {
		t.Fatalf("unexpected session query %q", q)
	}
	for _, want := range []string{"agent_start", "agent_end"} {
		msg, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %s, got %s", want, msg)
		}
	}
	_, err = conn.Read(ctx)
	code, ok := transports.CloseCode(err)
	if !ok || code != 4001 {
		t.Fatalf("expected close code 4001, got %v", err)
	}
}

func TestLocalCloseSendsCode(t *testing.T) {
	upgrader := websocket.Upgrader{}
	closed := make(chan int, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_, _, err = c.ReadMessage()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			closed <- ce.Code
			return
		}
		closed <- -1
	}))
	defer srv.Close()

	d := NewDialer(Config{URL: wsURL(srv)}, nil)
	conn, err := d.Dial(context.Background(), "s", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.Close(transports.CloseNormal, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Fatalf("unexpected close code %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server never saw the close")
	}
	if _, err := conn.Read(context.Background()); !errors.Is(err, transports.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestDialFailureIsReasoned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDialer(Config{URL: wsURL(srv)}, nil)
	_, err := d.Dial(context.Background(), "s", "bad")
	if err == nil {
		t.Fatalf("expected dial error")
	}
	if errorsx.Reason(err) != errorsx.ReasonTransportConnect {
		t.Fatalf("unexpected reason %s", errorsx.Reason(err))
	}
}

func TestEndpointTemplate(t *testing.T) {
	d := NewDialer(Config{URL: "wss://agents.example.test/ws/{session_id}/metrics"}, nil)
	got, err := d.Endpoint("a b", "k")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if got != "wss://agents.example.test/ws/a%20b/metrics?api_key=k" {
		t.Fatalf("unexpected endpoint %s", got)
	}
	if _, err := NewDialer(Config{}, nil).Endpoint("s", ""); err == nil {
		t.Fatalf("expected missing url error")
	}
}
