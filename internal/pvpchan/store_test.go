package pvpchan

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

func newTestRedisStore(t *testing.T, strict bool) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, RedisOptions{Strict: strict}), mr
}

// stores returns both implementations so each behavior is checked on each.
func stores(t *testing.T, strict bool) map[string]Store {
	rs, _ := newTestRedisStore(t, strict)
	return map[string]Store{
		"redis":  rs,
		"memory": NewMemoryStore(strict),
	}
}

func waitingSession(id, owner string) pvpchess.Session {
	return pvpchess.Session{
		ID:          id,
		Players:     pvpchess.Players{White: owner},
		CurrentTurn: pvpchess.White,
		Position:    rules.StartPosition,
		MoveLog:     []pvpchess.Move{},
		Status:      pvpchess.StatusWaiting,
		LastUpdated: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndLoad(t *testing.T) {
	for name, st := range stores(t, false) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.Create(ctx, waitingSession("s1", "alice")); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := st.Create(ctx, waitingSession("s1", "mallory")); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			if err := st.Create(ctx, waitingSession(" ", "x")); !errors.Is(err, ErrInvalidArgs) {
				t.Fatalf("expected ErrInvalidArgs, got %v", err)
			}
			got, err := st.Load(ctx, "s1")
			if err != nil || got == nil {
				t.Fatalf("Load: %+v %v", got, err)
			}
			if got.Players.White != "alice" || got.Status != pvpchess.StatusWaiting || got.Position != rules.StartPosition {
				t.Fatalf("unexpected record: %+v", got)
			}
			if len(got.MoveLog) != 0 || got.LastMove != nil {
				t.Fatalf("fresh record must have no moves: %+v", got)
			}
			if missing, err := st.Load(ctx, "nope"); err != nil || missing != nil {
				t.Fatalf("expected nil for missing record, got %+v %v", missing, err)
			}
		})
	}
}

func TestClaimSeat(t *testing.T) {
	for name, st := range stores(t, false) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.Create(ctx, waitingSession("s1", "alice")); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := st.ClaimSeat(ctx, "s1", pvpchess.White, "bob"); !errors.Is(err, ErrSeatTaken) {
				t.Fatalf("expected ErrSeatTaken, got %v", err)
			}
			got, err := st.ClaimSeat(ctx, "s1", pvpchess.Black, "bob")
			if err != nil {
				t.Fatalf("ClaimSeat: %v", err)
			}
			if got.Players.Black != "bob" || got.Status != pvpchess.StatusActive {
				t.Fatalf("claim did not activate: %+v", got)
			}
			// rejoin is a no-op
			if again, err := st.ClaimSeat(ctx, "s1", pvpchess.Black, "bob"); err != nil || again.Players.Black != "bob" {
				t.Fatalf("rejoin: %+v %v", again, err)
			}
			if _, err := st.ClaimSeat(ctx, "s1", pvpchess.Black, "carol"); !errors.Is(err, ErrSeatTaken) {
				t.Fatalf("expected ErrSeatTaken for full session, got %v", err)
			}
			if _, err := st.ClaimSeat(ctx, "nope", pvpchess.Black, "carol"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := st.ClaimSeat(ctx, "s1", "green", "carol"); !errors.Is(err, ErrInvalidArgs) {
				t.Fatalf("expected ErrInvalidArgs, got %v", err)
			}

			loaded, _ := st.Load(ctx, "s1")
			if loaded.Status != pvpchess.StatusActive || loaded.Players.Black != "bob" {
				t.Fatalf("claim not persisted: %+v", loaded)
			}
		})
	}
}

func TestClaimSeatEnded(t *testing.T) {
	for name, st := range stores(t, false) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = st.Create(ctx, waitingSession("s1", "alice"))
			if err := st.Publish(ctx, "s1", pvpchess.Delta{Status: pvpchess.StatusEnded}); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if _, err := st.ClaimSeat(ctx, "s1", pvpchess.Black, "bob"); !errors.Is(err, ErrEnded) {
				t.Fatalf("expected ErrEnded, got %v", err)
			}
		})
	}
}

func TestPublishPartialFields(t *testing.T) {
	for name, st := range stores(t, false) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = st.Create(ctx, waitingSession("s1", "alice"))
			_, _ = st.ClaimSeat(ctx, "s1", pvpchess.Black, "bob")

			mv := pvpchess.Move{From: "e2", To: "e4", Piece: "p", Mover: pvpchess.White, Notation: "e4"}
			pos := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
			err := st.Publish(ctx, "s1", pvpchess.Delta{
				CurrentTurn: pvpchess.Black,
				Position:    pos,
				MoveLog:     []pvpchess.Move{mv},
				LastMove:    &mv,
			})
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			got, _ := st.Load(ctx, "s1")
			if got.Position != pos || got.CurrentTurn != pvpchess.Black || len(got.MoveLog) != 1 {
				t.Fatalf("content not written: %+v", got)
			}
			if got.Players.White != "alice" || got.Players.Black != "bob" || got.Status != pvpchess.StatusActive {
				t.Fatalf("untouched fields changed: %+v", got)
			}
			if got.LastMove == nil || !got.LastMove.Matches(mv) {
				t.Fatalf("lastMove not written: %+v", got.LastMove)
			}

			// a later status-only write leaves content alone
			if err := st.Publish(ctx, "s1", pvpchess.Delta{Status: pvpchess.StatusEnded}); err != nil {
				t.Fatalf("Publish status: %v", err)
			}
			got, _ = st.Load(ctx, "s1")
			if got.Status != pvpchess.StatusEnded || got.Position != pos {
				t.Fatalf("status write clobbered content: %+v", got)
			}
			if err := st.Publish(ctx, "nope", pvpchess.Delta{Status: pvpchess.StatusEnded}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestPublishStrictConflict(t *testing.T) {
	for name, st := range stores(t, true) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = st.Create(ctx, waitingSession("s1", "alice"))
			e4 := pvpchess.Move{From: "e2", To: "e4", Mover: pvpchess.White}
			d4 := pvpchess.Move{From: "d2", To: "d4", Mover: pvpchess.White}

			if err := st.Publish(ctx, "s1", pvpchess.Delta{Position: "p1", MoveLog: []pvpchess.Move{e4}, BasePlies: 0}); err != nil {
				t.Fatalf("first writer: %v", err)
			}
			err := st.Publish(ctx, "s1", pvpchess.Delta{Position: "p2", MoveLog: []pvpchess.Move{d4}, BasePlies: 0})
			if !errors.Is(err, ErrVersionConflict) {
				t.Fatalf("expected ErrVersionConflict, got %v", err)
			}
			got, _ := st.Load(ctx, "s1")
			if got.Position != "p1" || got.MoveLog[0].From != "e2" {
				t.Fatalf("losing writer must not land: %+v", got)
			}
			// metadata writes bypass the guard
			if err := st.Publish(ctx, "s1", pvpchess.Delta{Status: pvpchess.StatusEnded}); err != nil {
				t.Fatalf("status write: %v", err)
			}
		})
	}
}

func TestPublishLastWriterWins(t *testing.T) {
	for name, st := range stores(t, false) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = st.Create(ctx, waitingSession("s1", "alice"))
			e4 := pvpchess.Move{From: "e2", To: "e4", Mover: pvpchess.White}
			d4 := pvpchess.Move{From: "d2", To: "d4", Mover: pvpchess.White}
			_ = st.Publish(ctx, "s1", pvpchess.Delta{Position: "p1", MoveLog: []pvpchess.Move{e4}})
			if err := st.Publish(ctx, "s1", pvpchess.Delta{Position: "p2", MoveLog: []pvpchess.Move{d4}}); err != nil {
				t.Fatalf("second writer: %v", err)
			}
			got, _ := st.Load(ctx, "s1")
			if got.Position != "p2" || got.MoveLog[0].From != "d2" {
				t.Fatalf("last writer must win: %+v", got)
			}
		})
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	for name, st := range stores(t, false) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = st.Create(ctx, waitingSession("s1", "alice"))

			got := make(chan pvpchess.Session, 16)
			sub, err := st.Subscribe(ctx, "s1", func(s pvpchess.Session) { got <- s })
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			defer sub.Close()

			first := recv(t, got)
			if first.Players.White != "alice" {
				t.Fatalf("initial snapshot: %+v", first)
			}
			if _, err := st.ClaimSeat(ctx, "s1", pvpchess.Black, "bob"); err != nil {
				t.Fatalf("ClaimSeat: %v", err)
			}
			deadline := time.After(2 * time.Second)
			for {
				select {
				case s := <-got:
					if s.Status == pvpchess.StatusActive && s.Players.Black == "bob" {
						return
					}
				case <-deadline:
					t.Fatalf("never observed the claimed seat")
				}
			}
		})
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	st := NewMemoryStore(false)
	ctx := context.Background()
	_ = st.Create(ctx, waitingSession("s1", "alice"))

	got := make(chan pvpchess.Session, 16)
	sub, _ := st.Subscribe(ctx, "s1", func(s pvpchess.Session) { got <- s })
	recv(t, got)
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	<-sub.(*memorySubscription).stopped

	_ = st.Publish(ctx, "s1", pvpchess.Delta{Status: pvpchess.StatusEnded})
	select {
	case s := <-got:
		t.Fatalf("delivery after Close: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryStoreInjectedFailure(t *testing.T) {
	st := NewMemoryStore(false)
	ctx := context.Background()
	_ = st.Create(ctx, waitingSession("s1", "alice"))
	boom := errors.New("link down")
	st.FailPublishes(boom)
	if err := st.Publish(ctx, "s1", pvpchess.Delta{Status: pvpchess.StatusEnded}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	st.FailPublishes(nil)
	if err := st.Publish(ctx, "s1", pvpchess.Delta{Status: pvpchess.StatusEnded}); err != nil {
		t.Fatalf("Publish after recovery: %v", err)
	}
}

func TestRedisVersionAndTTL(t *testing.T) {
	st, mr := newTestRedisStore(t, false)
	ctx := context.Background()
	_ = st.Create(ctx, waitingSession("s1", "alice"))
	_, _ = st.ClaimSeat(ctx, "s1", pvpchess.Black, "bob")

	if v := mr.HGet(sessionKey("s1"), fieldVersion); v != "2" {
		t.Fatalf("version = %q", v)
	}
	if ttl := mr.TTL(sessionKey("s1")); ttl != defaultTTL {
		t.Fatalf("TTL = %v", ttl)
	}
	mr.FastForward(defaultTTL + time.Second)
	if got, _ := st.Load(ctx, "s1"); got != nil {
		t.Fatalf("record must expire")
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://user:pw@localhost:6380/2")
	if err != nil {
		t.Fatalf("ParseRedisURL: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.Password != "pw" || opts.Username != "user" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if _, err := ParseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, err := ParseRedisURL("redis://localhost/x"); err == nil {
		t.Fatalf("expected db error")
	}
}

func recv(t *testing.T, ch <-chan pvpchess.Session) pvpchess.Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return pvpchess.Session{}
}
