package chessdto

import (
	"time"

	"github.com/park285/cheese-duel/internal/pvp"
	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

type Players struct {
	White string `json:"white"`
	Black string `json:"black"`
}

type Verdict struct {
	Terminal bool   `json:"terminal"`
	Winner   string `json:"winner,omitempty"`
	Method   string `json:"method,omitempty"`
}

// SessionState mirrors the shared record.
type SessionState struct {
	ID          string    `json:"id"`
	Players     Players   `json:"players"`
	CurrentTurn string    `json:"currentTurn"`
	Position    string    `json:"position"`
	MoveLog     []Move    `json:"moveLog"`
	Status      string    `json:"status"`
	LastMove    *Move     `json:"lastMove,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
	Verdict     *Verdict  `json:"verdict,omitempty"`
}

func FromSession(s pvpchess.Session) SessionState {
	out := SessionState{
		ID:          s.ID,
		Players:     Players{White: s.Players.White, Black: s.Players.Black},
		CurrentTurn: string(s.CurrentTurn),
		Position:    s.Position,
		MoveLog:     fromMoves(s.MoveLog),
		Status:      string(s.Status),
		LastUpdated: s.LastUpdated,
	}
	if s.LastMove != nil {
		mv := FromMove(*s.LastMove)
		out.LastMove = &mv
	}
	return out
}

// WithVerdict attaches the verdict when the position is terminal.
func (s SessionState) WithVerdict(v rules.Verdict) SessionState {
	if v.Terminal {
		s.Verdict = &Verdict{Terminal: true, Winner: string(v.Winner), Method: v.Method}
	}
	return s
}

// SessionEvent is one frame of the events stream.
type SessionEvent struct {
	Kind    string       `json:"kind"`
	Session SessionState `json:"session"`
	Color   string       `json:"color,omitempty"`
	Error   *DomainError `json:"error,omitempty"`
}

func FromNotification(n pvp.Notification) SessionEvent {
	ev := SessionEvent{
		Kind:    string(n.Kind),
		Session: FromSession(n.Session),
		Color:   string(n.Color),
	}
	if n.Err != nil {
		de := ErrorFor(n.Err, nil)
		ev.Error = &de
	}
	return ev
}
