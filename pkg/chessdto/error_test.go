package chessdto

import (
	"errors"
	"fmt"
	"testing"

	"github.com/park285/cheese-duel/internal/proposal"
	"github.com/park285/cheese-duel/internal/pvp"
	"github.com/park285/cheese-duel/internal/pvpchan"
	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

func TestErrorFor(t *testing.T) {
	cases := []struct {
		err       error
		code      string
		message   string
		retryable bool
	}{
		{pvpchess.ErrTurnViolation, CodeTurnViolation, "It's not your turn!", false},
		{fmt.Errorf("%w: e2e5", rules.ErrIllegalMove), CodeIllegalMove, "e2 to e5 is not a legal move.", false},
		{pvp.ErrSessionNotFound, CodeSessionNotFound, "Game not found", false},
		{pvp.ErrSessionFull, CodeSessionFull, "Game is full", false},
		{fmt.Errorf("%w: %w", pvpchess.ErrSyncFailure, errors.New("dial tcp")), CodeSyncFailure, "", true},
		{fmt.Errorf("%w: %w", pvpchess.ErrSyncFailure, pvpchan.ErrVersionConflict), CodeVersionConflict, "", true},
		{fmt.Errorf("%w after 3 attempts", proposal.ErrProposalExhausted), CodeProposalExhausted, "", true},
		{proposal.ErrMalformedProposal, CodeMalformedProposal, "", false},
		{errors.New("boom"), CodeInternal, "", false},
	}
	for _, tc := range cases {
		got := ErrorFor(tc.err, map[string]any{"From": "e2", "To": "e5"})
		if got.Code != tc.code || got.Retryable != tc.retryable {
			t.Fatalf("%v: got %+v", tc.err, got)
		}
		if tc.message != "" && got.Message != tc.message {
			t.Fatalf("%v: message %q", tc.err, got.Message)
		}
		if got.Message == "" {
			t.Fatalf("%v: empty message", tc.err)
		}
	}
}

func TestErrorForKeepsDomainError(t *testing.T) {
	de := DomainError{Code: "custom", Message: "kept"}
	if got := ErrorFor(fmt.Errorf("wrapped: %w", de), nil); got != de {
		t.Fatalf("got %+v", got)
	}
}

func TestFromSession(t *testing.T) {
	last := pvpchess.Move{From: "e2", To: "e4", Piece: "P", Mover: rules.White, Notation: "e4"}
	s := pvpchess.Session{
		ID:          "s1",
		Players:     pvpchess.Players{White: "alice", Black: "bob"},
		CurrentTurn: rules.Black,
		MoveLog:     []pvpchess.Move{last},
		Status:      pvpchess.StatusActive,
		LastMove:    &last,
	}
	got := FromSession(s).WithVerdict(rules.Verdict{})
	if got.CurrentTurn != "black" || got.Status != "active" || len(got.MoveLog) != 1 || got.LastMove.Notation != "e4" {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.Verdict != nil {
		t.Fatalf("non-terminal verdict must be omitted")
	}
	got = got.WithVerdict(rules.Verdict{Terminal: true, Winner: rules.White, Method: "checkmate"})
	if got.Verdict == nil || got.Verdict.Winner != "white" {
		t.Fatalf("unexpected verdict: %+v", got.Verdict)
	}
}
