package uci

import (
	"strings"
	"testing"
)

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("", nil); got != "position startpos\n" {
		t.Fatalf("got %q", got)
	}
	got := buildPositionCommand("8/8/8/8/8/8/8/K6k w - - 0 1", []string{"a1a2"})
	if got != "position fen 8/8/8/8/8/8/8/K6k w - - 0 1 moves a1a2\n" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildGoTokens(t *testing.T) {
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error without limits")
	}
	toks, err := buildGoTokens(Limits{Depth: 8, MoveTimeMillis: 300})
	if err != nil || strings.Join(toks, " ") != "go depth 8 movetime 300" {
		t.Fatalf("got %v %v", toks, err)
	}
}

func TestParseInfo(t *testing.T) {
	cp, pv, ok := parseInfo("info depth 12 seldepth 15 multipv 1 score cp -34 nodes 1000 pv e7e5 g1f3")
	if !ok || cp != -34 || len(pv) != 2 || pv[0] != "e7e5" {
		t.Fatalf("got %d %v %v", cp, pv, ok)
	}
	if cp, _, ok := parseInfo("info depth 20 score mate -3 pv h7h8"); !ok || cp != -30000 {
		t.Fatalf("mate score: %d %v", cp, ok)
	}
	if _, _, ok := parseInfo("info depth 3 multipv 2 score cp 10 pv a2a3"); ok {
		t.Fatalf("secondary lines must be ignored")
	}
	if _, _, ok := parseInfo("info string NNUE enabled"); ok {
		t.Fatalf("info without pv must be ignored")
	}
}

func TestOptionCommandsDefaults(t *testing.T) {
	cmds := optionCommands(Options{SkillLevel: 5})
	joined := strings.Join(cmds, "")
	for _, want := range []string{"Threads value 1", "Hash value 16", "Skill Level value 5"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %q", want, joined)
		}
	}
	if validateOptions(Options{SkillLevel: 21}) == nil {
		t.Fatalf("expected range error")
	}
}
