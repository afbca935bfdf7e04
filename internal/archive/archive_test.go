package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

func foolsMate() pvpchess.Session {
	return pvpchess.Session{
		ID:      "s1",
		Players: pvpchess.Players{White: "alice", Black: "bob"},
		MoveLog: []pvpchess.Move{
			{From: "f2", To: "f3", Mover: pvpchess.White, Notation: "f3"},
			{From: "e7", To: "e5", Mover: pvpchess.Black, Notation: "e5"},
			{From: "g2", To: "g4", Mover: pvpchess.White, Notation: "g4"},
			{From: "d8", To: "h4", Mover: pvpchess.Black, Notation: "Qh4#"},
		},
		Status:      pvpchess.StatusEnded,
		LastUpdated: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestFromSessionCheckmate(t *testing.T) {
	g := FromSession(foolsMate(), rules.Verdict{Terminal: true, Winner: rules.Black, Method: "checkmate"}, time.Time{})
	if g.Result != "black" || g.Method != "checkmate" || g.Plies != 4 {
		t.Fatalf("unexpected record: %+v", g)
	}
	if g.MovesUCI[3] != "d8h4" {
		t.Fatalf("unexpected uci list: %v", g.MovesUCI)
	}
	if !g.StartedAt.Equal(g.EndedAt) {
		t.Fatalf("missing start time must default to end time")
	}
	for _, want := range []string{`[Result "0-1"]`, `[Date "2025.03.04"]`, "1. f3 e5 2. g4 Qh4# 0-1", `[Termination "checkmate"]`} {
		if !strings.Contains(g.PGN, want) {
			t.Fatalf("PGN missing %q:\n%s", want, g.PGN)
		}
	}
}

func TestFromSessionAbandoned(t *testing.T) {
	s := foolsMate()
	s.MoveLog = s.MoveLog[:1]
	g := FromSession(s, rules.Verdict{}, time.Time{})
	if g.Result != "abandoned" || g.Method != "abandoned" {
		t.Fatalf("unexpected abandoned record: %+v", g)
	}
	if !strings.HasSuffix(g.PGN, "1. f3 *") {
		t.Fatalf("unexpected movetext:\n%s", g.PGN)
	}
}

func TestSanitizePGN(t *testing.T) {
	if got := sanitizePGN(` a"b\c `); got != `a'b c` {
		t.Fatalf("sanitizePGN = %q", got)
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	g := FromSession(foolsMate(), rules.Verdict{Terminal: true, Winner: rules.Black, Method: "checkmate"}, time.Time{})
	if err := repo.Save(ctx, g); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, g); !errors.Is(err, ErrDuplicateGame) {
		t.Fatalf("expected ErrDuplicateGame, got %v", err)
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil || got == nil || got.Result != "black" {
		t.Fatalf("Get: %+v %v", got, err)
	}
	got.MovesUCI[0] = "zzzz"
	again, _ := repo.Get(ctx, "s1")
	if again.MovesUCI[0] != "f2f3" {
		t.Fatalf("Get must return a copy")
	}

	other := *g
	other.SessionID = "s2"
	other.EndedAt = g.EndedAt.Add(time.Hour)
	if err := repo.Save(ctx, &other); err != nil {
		t.Fatalf("Save s2: %v", err)
	}
	recent, err := repo.RecentByPlayer(ctx, "bob", 1)
	if err != nil || len(recent) != 1 || recent[0].SessionID != "s2" {
		t.Fatalf("RecentByPlayer: %+v %v", recent, err)
	}
	if missing, _ := repo.Get(ctx, "nope"); missing != nil {
		t.Fatalf("expected nil for missing game")
	}
}
