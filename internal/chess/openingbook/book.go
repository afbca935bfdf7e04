package openingbook

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/cheese-duel/internal/rules"
)

var ErrNotInBook = errors.New("position not in book")

type Result struct {
	Move   string
	Weight uint16
}

// Book answers positions from a polyglot file for either side.
type Book struct {
	book *chesslib.PolyglotBook
}

// Open loads a polyglot book. An empty path yields a nil Book, which is
// valid and never has a move.
func Open(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	pb, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return &Book{book: pb}, nil
}

func LoadFromPath(bookPath string) (*chesslib.PolyglotBook, error) {
	if strings.TrimSpace(bookPath) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(bookPath)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", bookPath, err)
	}
	defer file.Close()

	book, err := chesslib.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", bookPath, err)
	}
	return book, nil
}

// Moves lists the legal book moves for fen, heaviest first.
func (b *Book) Moves(fen string) ([]Result, error) {
	if b == nil || b.book == nil {
		return nil, nil
	}
	game, err := buildGameFromPosition(fen)
	if err != nil {
		return nil, err
	}

	hashStr, err := chesslib.NewZobristHasher().HashPosition(game.FEN())
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	entries := b.book.FindMoves(chesslib.ZobristHashToUint64(hashStr))

	out := make([]Result, 0, len(entries))
	for _, entry := range entries {
		move := chesslib.DecodeMove(entry.Move).ToMove()
		uciMove := move.String()
		// books store castling as king-takes-rook on some builds; keep only legal moves
		if err := game.Clone().PushNotationMove(uciMove, chesslib.UCINotation{}, nil); err != nil {
			continue
		}
		out = append(out, Result{Move: uciMove, Weight: entry.Weight})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, nil
}

// Lookup returns the heaviest legal book move for fen.
func (b *Book) Lookup(fen string) (Result, error) {
	moves, err := b.Moves(fen)
	if err != nil {
		return Result{}, err
	}
	if len(moves) == 0 {
		return Result{}, ErrNotInBook
	}
	return moves[0], nil
}

// buildGameFromPosition goes through rules.LoadGame, which serialises FEN
// decoding for the whole process.
func buildGameFromPosition(fen string) (*chesslib.Game, error) {
	game, err := rules.LoadGame(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return game, nil
}
