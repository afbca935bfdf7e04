package chessdto

import "github.com/park285/cheese-duel/internal/pvpchess"

type Move struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Piece         string `json:"piece"`
	Mover         string `json:"mover"`
	Notation      string `json:"notation"`
	CapturedPiece string `json:"capturedPiece,omitempty"`
}

func FromMove(m pvpchess.Move) Move {
	return Move{
		From:          m.From,
		To:            m.To,
		Piece:         m.Piece,
		Mover:         string(m.Mover),
		Notation:      m.Notation,
		CapturedPiece: m.CapturedPiece,
	}
}

func fromMoves(ms []pvpchess.Move) []Move {
	out := make([]Move, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMove(m))
	}
	return out
}
