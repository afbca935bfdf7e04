package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-duel/pkg/chessdto"
)

// flakyServer sends one snapshot per connection and hangs up the first one.
func flakyServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := conn.CloseRead(r.Context())
		ev := chessdto.SessionEvent{Kind: "snapshot", Session: chessdto.SessionState{ID: "s1", Status: "active"}}
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			return
		}
		if n == 1 {
			_ = conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
		<-ctx.Done()
	}))
	t.Cleanup(ts.Close)
	return ts, &conns
}

func TestStreamURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080/":  "ws://localhost:8080/sessions/s1/events",
		"https://duel.example":    "wss://duel.example/sessions/s1/events",
		"ws://already.example:81": "ws://already.example:81/sessions/s1/events",
	}
	for in, want := range cases {
		if got := StreamURL(in, " s1 "); got != want {
			t.Fatalf("%s: got %s", in, got)
		}
	}
}

func TestClientReconnectsAndRedelivers(t *testing.T) {
	ts, conns := flakyServer(t)
	c := New(StreamURL(ts.URL, "s1"), 3, 10*time.Millisecond)

	events := make(chan chessdto.SessionEvent, 8)
	c.OnEvent(func(ev chessdto.SessionEvent) { events <- ev })
	states := make(chan State, 16)
	c.OnStateChange(func(s State) { states <- s })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			if ev.Kind != "snapshot" || ev.Session.ID != "s1" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("snapshot %d never arrived", i+1)
		}
	}
	if got := conns.Load(); got != 2 {
		t.Fatalf("expected one reconnect, got %d connections", got)
	}

	sawReconnect := false
	for len(states) > 0 {
		if <-states == StateReconnecting {
			sawReconnect = true
		}
	}
	if !sawReconnect {
		t.Fatalf("reconnecting state never reported")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state after close: %s", c.State())
	}
}

func TestClientConnectFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	c := New("ws"+strings.TrimPrefix(ts.URL, "http")+"/missing", 0, time.Millisecond)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if c.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", c.State())
	}
}
