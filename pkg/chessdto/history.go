package chessdto

import (
	"time"

	"github.com/park285/cheese-duel/internal/archive"
)

type ArchivedGame struct {
	SessionID string    `json:"sessionId"`
	WhiteID   string    `json:"whiteId"`
	BlackID   string    `json:"blackId"`
	Result    string    `json:"result"`
	Method    string    `json:"method"`
	MovesUCI  []string  `json:"movesUci"`
	MovesSAN  []string  `json:"movesSan"`
	ECO       string    `json:"eco,omitempty"`
	Opening   string    `json:"opening,omitempty"`
	PGN       string    `json:"pgn"`
	Plies     int       `json:"plies"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

func FromArchive(g *archive.Game) ArchivedGame {
	return ArchivedGame{
		SessionID: g.SessionID,
		WhiteID:   g.WhiteID,
		BlackID:   g.BlackID,
		Result:    g.Result,
		Method:    g.Method,
		MovesUCI:  g.MovesUCI,
		MovesSAN:  g.MovesSAN,
		ECO:       g.ECO,
		Opening:   g.Opening,
		PGN:       g.PGN,
		Plies:     g.Plies,
		StartedAt: g.StartedAt,
		EndedAt:   g.EndedAt,
	}
}

type HistoryResponse struct {
	Games []ArchivedGame `json:"games"`
}
