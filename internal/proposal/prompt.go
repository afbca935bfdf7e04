package proposal

import (
	"fmt"
	"strings"
)

const SystemPrompt = "You are a chess engine. Reply with exactly one move in the form from:<square> to:<square>, for example from:e2 to:e4. No other text."

// UserPrompt renders a request for chat-model agents.
func UserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Position (FEN): %s\n", req.Position)
	fmt.Fprintf(&b, "You play %s.\n", req.SideToMove)
	if len(req.MoveHistory) > 0 {
		fmt.Fprintf(&b, "Moves so far: %s\n", strings.Join(req.MoveHistory, " "))
	}
	if len(req.LegalMoves) > 0 {
		fmt.Fprintf(&b, "Legal moves: %s\n", strings.Join(req.LegalMoves, " "))
	}
	if r := req.PreviousRejected; r != nil {
		fmt.Fprintf(&b, "Your previous answer %q was rejected (%s). Choose a different legal move.\n", r.Proposal, r.Reason)
	}
	b.WriteString("Your move:")
	return b.String()
}
