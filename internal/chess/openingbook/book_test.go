package openingbook

import (
	"errors"
	"path/filepath"
	"testing"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/cheese-duel/internal/rules"
)

func TestOpenEmptyPathYieldsNilBook(t *testing.T) {
	b, err := Open("  ")
	if err != nil || b != nil {
		t.Fatalf("Open(empty) = %v, %v", b, err)
	}
	moves, err := b.Moves("startpos")
	if err != nil || moves != nil {
		t.Fatalf("nil book must have no moves: %v %v", moves, err)
	}
	if _, err := b.Lookup("startpos"); !errors.Is(err, ErrNotInBook) {
		t.Fatalf("expected ErrNotInBook, got %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatalf("expected error for missing book")
	}
}

func TestBuildGameFromPosition(t *testing.T) {
	g, err := buildGameFromPosition("")
	if err != nil {
		t.Fatalf("buildGameFromPosition: %v", err)
	}
	if g.Position().Turn() != chesslib.White {
		t.Fatalf("expected white to move from the initial position")
	}
	g, err = buildGameFromPosition("rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2")
	if err != nil {
		t.Fatalf("buildGameFromPosition(fen): %v", err)
	}
	if err := g.PushNotationMove("g1f3", chesslib.UCINotation{}, nil); err != nil {
		t.Fatalf("g1f3 after 1.e4 e5: %v", err)
	}
	if _, err := buildGameFromPosition("not a fen"); !errors.Is(err, rules.ErrInvalidPosition) {
		t.Fatalf("expected invalid position, got %v", err)
	}
}
