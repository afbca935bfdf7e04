package pvpchess

import (
	"fmt"

	"github.com/park285/cheese-duel/internal/rules"
)

// MoveLog is the ordered, append-only list of plies of one session.
// It is not safe for concurrent use; Machine guards it.
type MoveLog struct {
	moves []Move
}

// NewMoveLog copies moves into a new log.
func NewMoveLog(moves []Move) *MoveLog {
	return &MoveLog{moves: append([]Move(nil), moves...)}
}

func (l *MoveLog) Len() int { return len(l.moves) }

// Append adds m at the end of the log.
func (l *MoveLog) Append(m Move) {
	l.moves = append(l.moves, m)
}

// AppendAt places m at index. A matching entry already at index is a
// duplicate and is skipped (false, nil).
func (l *MoveLog) AppendAt(index int, m Move) (bool, error) {
	switch {
	case index < len(l.moves):
		if l.moves[index].Matches(m) {
			return false, nil
		}
		return false, fmt.Errorf("%w at ply %d", ErrLogDiverged, index+1)
	case index > len(l.moves):
		return false, fmt.Errorf("%w: ply %d after %d", ErrLogGap, index+1, len(l.moves))
	}
	l.moves = append(l.moves, m)
	return true, nil
}

// TailMoves returns a copy of the entries from index on.
func (l *MoveLog) TailMoves(from int) []Move {
	if from < 0 {
		from = 0
	}
	if from >= len(l.moves) {
		return nil
	}
	return append([]Move(nil), l.moves[from:]...)
}

// Moves returns a copy of the whole log.
func (l *MoveLog) Moves() []Move { return l.TailMoves(0) }

// Last returns the most recent move.
func (l *MoveLog) Last() (Move, bool) {
	if len(l.moves) == 0 {
		return Move{}, false
	}
	return l.moves[len(l.moves)-1], true
}

// CommonPrefix counts leading entries of other that match the log.
func (l *MoveLog) CommonPrefix(other []Move) int {
	n := 0
	for n < len(l.moves) && n < len(other) && l.moves[n].Matches(other[n]) {
		n++
	}
	return n
}

// Equal reports whether other has exactly the same identity triples.
func (l *MoveLog) Equal(other []Move) bool {
	return len(other) == len(l.moves) && l.CommonPrefix(other) == len(l.moves)
}

// Pairs returns the from/to pairs in order.
func (l *MoveLog) Pairs() []rules.SquarePair {
	out := make([]rules.SquarePair, len(l.moves))
	for i, m := range l.moves {
		out[i] = m.Pair()
	}
	return out
}

func (l *MoveLog) reset() { l.moves = nil }

func (l *MoveLog) replace(moves []Move) { l.moves = append([]Move(nil), moves...) }
