package archive

import (
	"context"
	"errors"
	"time"

	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

var ErrDuplicateGame = errors.New("archived game already exists")

// Game is a finished session as stored for history.
type Game struct {
	SessionID string
	WhiteID   string
	BlackID   string
	// Result is white, black, draw or abandoned.
	Result    string
	Method    string
	MovesUCI  []string
	MovesSAN  []string
	ECO       string
	Opening   string
	PGN       string
	Plies     int
	StartedAt time.Time
	EndedAt   time.Time
}

// Repository stores finished games.
type Repository interface {
	Save(ctx context.Context, g *Game) error
	Get(ctx context.Context, sessionID string) (*Game, error)
	RecentByPlayer(ctx context.Context, playerID string, limit int) ([]*Game, error)
	Close() error
}

// FromSession builds the archive record for an ended session.
func FromSession(s pvpchess.Session, v rules.Verdict, startedAt time.Time) *Game {
	g := &Game{
		SessionID: s.ID,
		WhiteID:   s.Players.White,
		BlackID:   s.Players.Black,
		Plies:     len(s.MoveLog),
		StartedAt: startedAt,
		EndedAt:   s.LastUpdated,
	}
	if g.EndedAt.IsZero() {
		g.EndedAt = time.Now()
	}
	if g.StartedAt.IsZero() || g.StartedAt.After(g.EndedAt) {
		g.StartedAt = g.EndedAt
	}

	pairs := make([]rules.SquarePair, 0, len(s.MoveLog))
	for _, mv := range s.MoveLog {
		g.MovesUCI = append(g.MovesUCI, mv.From+mv.To)
		g.MovesSAN = append(g.MovesSAN, mv.Notation)
		pairs = append(pairs, mv.Pair())
	}
	g.ECO, g.Opening = rules.Opening(pairs)

	switch {
	case v.Terminal && v.Winner != "":
		g.Result = string(v.Winner)
	case v.Terminal:
		g.Result = "draw"
	default:
		g.Result = "abandoned"
	}
	g.Method = v.Method
	if !v.Terminal {
		g.Method = "abandoned"
	}
	g.PGN = BuildPGN(g)
	return g
}
