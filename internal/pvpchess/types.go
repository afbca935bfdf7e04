package pvpchess

import (
	"time"

	"github.com/park285/cheese-duel/internal/rules"
)

// Color identifies chess side.
type Color = rules.Color

const (
	White = rules.White
	Black = rules.Black
)

// Status is the shared lifecycle state of a session record.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// State is the local state machine phase. Idle has no session attached.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return "idle"
}

func stateFor(s Status) State {
	switch s {
	case StatusActive:
		return StateActive
	case StatusEnded:
		return StateEnded
	case StatusWaiting:
		return StateWaiting
	}
	return StateIdle
}

// Move is one ply as stored in the shared record.
type Move struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Piece         string `json:"piece"`
	Mover         Color  `json:"mover"`
	Notation      string `json:"notation"`
	CapturedPiece string `json:"capturedPiece,omitempty"`
}

// Matches compares the identity triple used for duplicate suppression.
func (m Move) Matches(o Move) bool {
	return m.From == o.From && m.To == o.To && m.Mover == o.Mover
}

func (m Move) Pair() rules.SquarePair { return rules.SquarePair{From: m.From, To: m.To} }

// Players maps each color to a participant id; empty means unassigned.
type Players struct {
	White string `json:"white"`
	Black string `json:"black"`
}

// Of returns the participant seated at c.
func (p Players) Of(c Color) string {
	if c == Black {
		return p.Black
	}
	return p.White
}

// Seat returns the color held by participant id.
func (p Players) Seat(id string) (Color, bool) {
	switch {
	case id == "":
		return "", false
	case p.White == id:
		return White, true
	case p.Black == id:
		return Black, true
	}
	return "", false
}

// Full reports whether both colors are assigned.
func (p Players) Full() bool { return p.White != "" && p.Black != "" }

// Session is the record shared through the sync channel. A snapshot read
// back from the store may be partial; absent fields are zero values.
type Session struct {
	ID          string    `json:"id"`
	Players     Players   `json:"players"`
	CurrentTurn Color     `json:"currentTurn"`
	Position    string    `json:"position"`
	MoveLog     []Move    `json:"moveLog"`
	Status      Status    `json:"status"`
	LastMove    *Move     `json:"lastMove"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	out.MoveLog = append([]Move(nil), s.MoveLog...)
	if s.LastMove != nil {
		mv := *s.LastMove
		out.LastMove = &mv
	}
	return out
}

// Delta is a partial update. Zero-valued fields are not written.
type Delta struct {
	Players     *Players
	CurrentTurn Color
	Position    string
	// MoveLog is the writer's complete log; entries from BasePlies on are new.
	MoveLog     []Move
	BasePlies   int
	Status      Status
	LastMove    *Move
	LastUpdated time.Time
}

// HasContent reports whether the delta changes the position.
func (d Delta) HasContent() bool { return d.Position != "" }

// Tail returns the moves appended by this delta.
func (d Delta) Tail() []Move {
	if d.BasePlies < 0 || d.BasePlies > len(d.MoveLog) {
		return d.MoveLog
	}
	return d.MoveLog[d.BasePlies:]
}

// MergeResult classifies the outcome of MergeRemoteSnapshot.
type MergeResult int

const (
	MergeNoop MergeResult = iota
	MergeMetadata
	MergeAdopted
	MergeStale
	MergeRejected
)

func (r MergeResult) String() string {
	switch r {
	case MergeMetadata:
		return "metadata"
	case MergeAdopted:
		return "adopted"
	case MergeStale:
		return "stale"
	case MergeRejected:
		return "rejected"
	}
	return "noop"
}
