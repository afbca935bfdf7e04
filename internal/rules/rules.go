// Package rules adapts github.com/corentings/chess/v2 to the small surface the
// session engine needs. Positions are FEN strings.
package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

// StartPosition is the FEN of the standard initial position.
const StartPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrIllegalMove     = errors.New("illegal move")
	ErrInvalidPosition = errors.New("invalid position")
)

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether c names a side.
func (c Color) Valid() bool { return c == White || c == Black }

// ParseColor accepts "white"/"black" and the short forms "w"/"b".
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	}
	return "", false
}

// SquarePair is an origin/destination pair such as e2→e4.
type SquarePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (p SquarePair) String() string { return p.From + p.To }

// Applied describes the result of a successful ApplyMove.
type Applied struct {
	Position      string
	Mover         Color
	Piece         string
	Notation      string
	CapturedPiece string
	Promotion     string
}

// Verdict is the terminal state of a position.
type Verdict struct {
	Terminal bool
	// Winner is empty for draws and non-terminal positions.
	Winner Color
	Method string
}

// Engine is the rules capability consumed by the session engine.
type Engine interface {
	InitialPosition() string
	LegalMoves(position string) ([]SquarePair, error)
	ApplyMove(position, from, to string) (Applied, error)
	IsTerminal(position string) bool
	Verdict(position string) (Verdict, error)
	// GameVerdict judges the game reached by moves from the initial
	// position. Unlike Verdict it sees repetitions.
	GameVerdict(moves []SquarePair) (Verdict, error)
	SideToMove(position string) (Color, error)
}

// Chess implements Engine. It keeps no state; games are built through
// LoadGame, so it is safe for concurrent use.
type Chess struct{}

// NewChess returns the default rules engine.
func NewChess() *Chess { return &Chess{} }

func (*Chess) InitialPosition() string { return StartPosition }

func (*Chess) LegalMoves(position string) ([]SquarePair, error) {
	game, err := LoadGame(position)
	if err != nil {
		return nil, err
	}
	seen := make(map[SquarePair]struct{})
	var out []SquarePair
	for _, mv := range game.ValidMoves() {
		p := SquarePair{From: mv.S1().String(), To: mv.S2().String()}
		// 프로모션 4종은 한 쌍으로 취급
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// ApplyMove plays from→to on position. Promotions without a piece become queens.
func (*Chess) ApplyMove(position, from, to string) (Applied, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	game, err := LoadGame(position)
	if err != nil {
		return Applied{}, err
	}
	pos := game.Position()

	var (
		found     bool
		promotes  bool
		capture   bool
		enPassant bool
		s1, s2    nchess.Square
	)
	for _, mv := range game.ValidMoves() {
		if mv.S1().String() != from || mv.S2().String() != to {
			continue
		}
		found = true
		s1, s2 = mv.S1(), mv.S2()
		capture = mv.HasTag(nchess.Capture)
		enPassant = mv.HasTag(nchess.EnPassant)
		if mv.Promo() != nchess.NoPieceType {
			promotes = true
		}
	}
	if !found {
		return Applied{}, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
	}

	moving := pos.Board().Piece(s1)
	var captured string
	switch {
	case enPassant:
		captured = pieceLetter(nchess.Pawn)
	case capture:
		captured = pieceLetter(pos.Board().Piece(s2).Type())
	}

	uci := from + to
	promotion := ""
	if promotes {
		promotion = pieceLetter(nchess.Queen)
		uci += promotion
	}
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return Applied{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, err)
	}
	moves := game.Moves()
	last := moves[len(moves)-1]

	return Applied{
		Position:      game.FEN(),
		Mover:         colorFrom(moving.Color()),
		Piece:         pieceLetter(moving.Type()),
		Notation:      nchess.AlgebraicNotation{}.Encode(pos, last),
		CapturedPiece: captured,
		Promotion:     promotion,
	}, nil
}

func (c *Chess) IsTerminal(position string) bool {
	v, err := c.Verdict(position)
	return err == nil && v.Terminal
}

func (*Chess) Verdict(position string) (Verdict, error) {
	game, err := LoadGame(position)
	if err != nil {
		return Verdict{}, err
	}
	return verdictOf(game), nil
}

func (*Chess) GameVerdict(moves []SquarePair) (Verdict, error) {
	game, err := LoadGame(StartPosition)
	if err != nil {
		return Verdict{}, err
	}
	for i, mv := range moves {
		if err := pushPair(game, mv); err != nil {
			return Verdict{}, fmt.Errorf("%w: ply %d (%s): %v", ErrIllegalMove, i+1, mv, err)
		}
	}
	return verdictOf(game), nil
}

func (*Chess) SideToMove(position string) (Color, error) {
	game, err := LoadGame(position)
	if err != nil {
		return "", err
	}
	return colorFrom(game.Position().Turn()), nil
}

// Replay applies moves in order from start and returns the final position.
func Replay(e Engine, start string, moves []SquarePair) (string, error) {
	pos := start
	for i, mv := range moves {
		applied, err := e.ApplyMove(pos, mv.From, mv.To)
		if err != nil {
			return "", fmt.Errorf("replay ply %d (%s): %w", i+1, mv, err)
		}
		pos = applied.Position
	}
	return pos, nil
}

// Opening returns the ECO code and title for a move sequence from the
// initial position, or empty strings when no line matches.
func Opening(moves []SquarePair) (code, title string) {
	game, err := LoadGame(StartPosition)
	if err != nil {
		return "", ""
	}
	for _, mv := range moves {
		if err := pushPair(game, mv); err != nil {
			break
		}
	}
	if eco := ecoBook().Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

var (
	// corentings/chess는 FEN을 패키지 전역 버퍼로 파싱한다: 게임 생성은 직렬화
	decodeMu sync.Mutex

	ecoOnce sync.Once
	ecoECO  *opening.BookECO
)

// LoadGame builds a game at position ("" and "startpos" mean the initial
// position). Every chess game in this module is constructed here.
func LoadGame(position string) (*nchess.Game, error) {
	position = strings.TrimSpace(position)
	decodeMu.Lock()
	defer decodeMu.Unlock()
	if position == "" || position == StartPosition || position == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return nchess.NewGame(opt), nil
}

func ecoBook() *opening.BookECO {
	ecoOnce.Do(func() {
		decodeMu.Lock()
		defer decodeMu.Unlock()
		ecoECO = opening.NewBookECO()
	})
	return ecoECO
}

// pushPair plays a square pair, promoting to a queen when needed.
func pushPair(game *nchess.Game, mv SquarePair) error {
	err := game.PushNotationMove(mv.String(), nchess.UCINotation{}, nil)
	if err == nil {
		return nil
	}
	if qerr := game.PushNotationMove(mv.String()+"q", nchess.UCINotation{}, nil); qerr == nil {
		return nil
	}
	return err
}

func verdictOf(game *nchess.Game) Verdict {
	v := Verdict{}
	switch game.Outcome() {
	case nchess.WhiteWon:
		v.Terminal, v.Winner = true, White
	case nchess.BlackWon:
		v.Terminal, v.Winner = true, Black
	case nchess.Draw:
		v.Terminal = true
	}
	if v.Terminal {
		v.Method = methodName(game.Method())
		return v
	}
	if len(game.ValidMoves()) > 0 {
		// 반복/50수 무승부는 청구 대상이지만 여기서는 자동으로 적용
		for _, claim := range []nchess.Method{nchess.ThreefoldRepetition, nchess.FiftyMoveRule} {
			if slices.Contains(game.EligibleDraws(), claim) && game.Draw(claim) == nil {
				v.Terminal, v.Method = true, methodName(claim)
				return v
			}
		}
		return v
	}
	// FEN으로 불러온 종국 포지션은 Outcome이 비어 있을 수 있음
	v.Terminal = true
	pos := game.Position()
	if pos.Status() == nchess.Checkmate {
		v.Winner = colorFrom(pos.Turn()).Opponent()
		v.Method = methodName(nchess.Checkmate)
		return v
	}
	v.Method = methodName(nchess.Stalemate)
	return v
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient material"
	case nchess.ThreefoldRepetition:
		return "threefold repetition"
	case nchess.FivefoldRepetition:
		return "fivefold repetition"
	case nchess.FiftyMoveRule:
		return "fifty-move rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy-five-move rule"
	case nchess.Resignation:
		return "resignation"
	case nchess.DrawOffer:
		return "draw offer"
	}
	return strings.ToLower(m.String())
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}

func pieceLetter(t nchess.PieceType) string {
	switch t {
	case nchess.King:
		return "k"
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	case nchess.Pawn:
		return "p"
	}
	return ""
}
