package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/pvp"
	"github.com/park285/cheese-duel/pkg/chessdto"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second

	// KindSnapshot is the first frame of every stream.
	KindSnapshot = "snapshot"
)

// handleEvents streams SessionEvent frames for one session. A client that
// falls eventBuffer frames behind is disconnected and must reconnect for a
// fresh snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	frames := make(chan chessdto.SessionEvent, eventBuffer)
	lagged := make(chan struct{})
	var lagOnce sync.Once
	off := s.manager.Subscribe(func(n pvp.Notification) {
		if n.Session.ID != id {
			return
		}
		select {
		case frames <- chessdto.FromNotification(n):
		default:
			lagOnce.Do(func() { close(lagged) })
		}
	})
	defer off()

	sess, err := s.manager.Session(id)
	if errors.Is(err, pvp.ErrSessionNotFound) {
		sess, err = s.manager.Attach(r.Context(), id)
	}
	if err != nil {
		respondError(w, err, nil)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		obslog.Session(id).Debug("ws_accept_failed", zap.Error(err))
		return
	}
	ctx := conn.CloseRead(r.Context())
	lg := obslog.Session(id)
	lg.Debug("ws_stream_opened")

	first := chessdto.SessionEvent{Kind: KindSnapshot, Session: s.withVerdict(id, chessdto.FromSession(sess))}
	if err := writeFrame(ctx, conn, first); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-lagged:
			lg.Warn("ws_stream_lagged")
			_ = conn.Close(websocket.StatusPolicyViolation, "event stream lagged")
			return
		case ev := <-frames:
			if err := writeFrame(ctx, conn, ev); err != nil {
				lg.Debug("ws_write_failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, ev chessdto.SessionEvent) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}
