package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-duel/internal/archive"
	"github.com/park285/cheese-duel/internal/pvp"
	"github.com/park285/cheese-duel/internal/pvpchan"
	"github.com/park285/cheese-duel/pkg/chessdto"
)

func newTestServer(t *testing.T) (*httptest.Server, *archive.MemoryRepository) {
	t.Helper()
	repo := archive.NewMemoryRepository()
	m, err := pvp.NewManager(pvp.Options{Store: pvpchan.NewMemoryStore(false), Archive: repo})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	ts := httptest.NewServer(New(Options{Manager: m, Archive: repo}).Router())
	t.Cleanup(ts.Close)
	return ts, repo
}

func call(t *testing.T, ts *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func createActive(t *testing.T, ts *httptest.Server) chessdto.SessionState {
	t.Helper()
	var created chessdto.SessionState
	if code := call(t, ts, http.MethodPost, "/sessions", chessdto.CreateSessionRequest{OwnerID: "alice"}, &created); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	var joined chessdto.SessionState
	if code := call(t, ts, http.MethodPost, "/sessions/"+created.ID+"/join", chessdto.JoinRequest{PlayerID: "bob"}, &joined); code != http.StatusOK {
		t.Fatalf("join: %d", code)
	}
	if joined.Status != "active" {
		t.Fatalf("expected active session, got %+v", joined)
	}
	return joined
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	var out map[string]string
	if code := call(t, ts, http.MethodGet, "/healthz", nil, &out); code != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("healthz: %d %v", code, out)
	}
}

func TestMoveFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	s := createActive(t, ts)

	var moved chessdto.MoveResponse
	code := call(t, ts, http.MethodPost, "/sessions/"+s.ID+"/moves", chessdto.MoveRequest{PlayerID: "alice", From: "E2", To: "e4"}, &moved)
	if code != http.StatusOK || moved.Move.Notation != "e4" || moved.Session.CurrentTurn != "black" {
		t.Fatalf("move: %d %+v", code, moved)
	}

	var errResp chessdto.ErrorResponse
	code = call(t, ts, http.MethodPost, "/sessions/"+s.ID+"/moves", chessdto.MoveRequest{PlayerID: "alice", From: "d2", To: "d4"}, &errResp)
	if code != http.StatusConflict || errResp.Error.Code != chessdto.CodeTurnViolation || errResp.Error.Message != "It's not your turn!" {
		t.Fatalf("turn violation: %d %+v", code, errResp)
	}
	code = call(t, ts, http.MethodPost, "/sessions/"+s.ID+"/moves", chessdto.MoveRequest{PlayerID: "bob", From: "e7", To: "e4"}, &errResp)
	if code != http.StatusConflict || errResp.Error.Code != chessdto.CodeIllegalMove || !strings.Contains(errResp.Error.Message, "e7 to e4") {
		t.Fatalf("illegal move: %d %+v", code, errResp)
	}
	code = call(t, ts, http.MethodPost, "/sessions/"+s.ID+"/moves", chessdto.MoveRequest{PlayerID: "eve", From: "e7", To: "e5"}, &errResp)
	if code != http.StatusForbidden || errResp.Error.Code != chessdto.CodeNotParticipant {
		t.Fatalf("non participant: %d %+v", code, errResp)
	}

	var got chessdto.SessionState
	if code := call(t, ts, http.MethodGet, "/sessions/"+s.ID, nil, &got); code != http.StatusOK || len(got.MoveLog) != 1 {
		t.Fatalf("get: %d %+v", code, got)
	}
}

func TestJoinErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	s := createActive(t, ts)

	var errResp chessdto.ErrorResponse
	if code := call(t, ts, http.MethodPost, "/sessions/"+s.ID+"/join", chessdto.JoinRequest{PlayerID: "carol"}, &errResp); code != http.StatusConflict || errResp.Error.Message != "Game is full" {
		t.Fatalf("full: %d %+v", code, errResp)
	}
	if code := call(t, ts, http.MethodPost, "/sessions/nope/join", chessdto.JoinRequest{PlayerID: "carol"}, &errResp); code != http.StatusNotFound || errResp.Error.Message != "Game not found" {
		t.Fatalf("not found: %d %+v", code, errResp)
	}
	if code := call(t, ts, http.MethodPost, "/sessions", "not an object", &errResp); code != http.StatusBadRequest {
		t.Fatalf("bad body: %d", code)
	}
}

func TestAutomationWithoutDriver(t *testing.T) {
	ts, _ := newTestServer(t)
	s := createActive(t, ts)

	var errResp chessdto.ErrorResponse
	code := call(t, ts, http.MethodPut, "/sessions/"+s.ID+"/automation", chessdto.AutomationRequest{Color: "black", Enabled: true}, &errResp)
	if code != http.StatusServiceUnavailable || errResp.Error.Code != chessdto.CodeAutomationDisabled {
		t.Fatalf("automation: %d %+v", code, errResp)
	}
	code = call(t, ts, http.MethodPut, "/sessions/"+s.ID+"/automation", chessdto.AutomationRequest{Color: "purple", Enabled: true}, &errResp)
	if code != http.StatusBadRequest {
		t.Fatalf("bad color: %d", code)
	}
	var st chessdto.AutomationState
	if code := call(t, ts, http.MethodGet, "/sessions/"+s.ID+"/automation?color=white", nil, &st); code != http.StatusOK || st.Enabled {
		t.Fatalf("status: %d %+v", code, st)
	}
}

func TestLeaveArchivesGame(t *testing.T) {
	ts, _ := newTestServer(t)
	s := createActive(t, ts)

	if code := call(t, ts, http.MethodPost, "/sessions/"+s.ID+"/leave", nil, nil); code != http.StatusNoContent {
		t.Fatalf("leave: %d", code)
	}
	if code := call(t, ts, http.MethodPost, "/sessions/"+s.ID+"/leave", nil, nil); code != http.StatusNoContent {
		t.Fatalf("second leave: %d", code)
	}

	var hist chessdto.HistoryResponse
	if code := call(t, ts, http.MethodGet, "/players/bob/games?limit=5", nil, &hist); code != http.StatusOK {
		t.Fatalf("history: %d", code)
	}
	if len(hist.Games) != 1 || hist.Games[0].SessionID != s.ID || hist.Games[0].Result != "abandoned" {
		t.Fatalf("unexpected history: %+v", hist)
	}
	var errResp chessdto.ErrorResponse
	if code := call(t, ts, http.MethodGet, "/players/bob/games?limit=x", nil, &errResp); code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", code)
	}
}

func TestEventsStream(t *testing.T) {
	ts, _ := newTestServer(t)
	s := createActive(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + s.ID + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first chessdto.SessionEvent
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Kind != KindSnapshot || first.Session.ID != s.ID || first.Session.Status != "active" {
		t.Fatalf("unexpected snapshot: %+v", first)
	}

	if code := call(t, ts, http.MethodPost, "/sessions/"+s.ID+"/moves", chessdto.MoveRequest{PlayerID: "alice", From: "g1", To: "f3"}, nil); code != http.StatusOK {
		t.Fatalf("move: %d", code)
	}
	for {
		var ev chessdto.SessionEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if ev.Kind == string(pvp.KindTurnChanged) {
			if ev.Session.CurrentTurn != "black" || len(ev.Session.MoveLog) != 1 {
				t.Fatalf("unexpected turn event: %+v", ev)
			}
			return
		}
	}
}

func TestEventsUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/sessions/nope/events")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
