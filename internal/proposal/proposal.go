// Package proposal drives an external move-proposal agent for a color that
// is played automatically.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/park285/cheese-duel/internal/rules"
)

var (
	// ErrProposalExhausted is returned after MaxAttempts rejected proposals.
	// The caller may re-enable automation to try again.
	ErrProposalExhausted = errors.New("no legal move proposed within the attempt limit")
	ErrMalformedProposal = errors.New("proposal is not a square pair")
	ErrAgentUnavailable  = errors.New("move proposal agent unavailable")
	ErrSessionTerminal   = errors.New("session is over")
	ErrNotOurTurn        = errors.New("automated color is not to move")
	// ErrUnderPromotion rejects promotions to anything but a queen.
	ErrUnderPromotion = fmt.Errorf("%w: only promotion to a queen is supported", rules.ErrIllegalMove)
)

// Rejection is the feedback handed to the agent about its previous answer.
type Rejection struct {
	Proposal string `json:"proposal"`
	Reason   string `json:"reason"`
	Attempt  int    `json:"attempt"`
}

// Request is everything an agent may use to pick a move.
type Request struct {
	SessionID        string      `json:"sessionId"`
	Position         string      `json:"position"`
	MoveHistory      []string    `json:"moveHistory"`
	LegalMoves       []string    `json:"legalMoves"`
	SideToMove       rules.Color `json:"sideToMove"`
	PreviousRejected *Rejection  `json:"previousRejected,omitempty"`
	Temperature      float32     `json:"temperature"`
	MaxTokens        int         `json:"maxTokens"`
	Attempt          int         `json:"attempt"`
}

// Agent answers a Request with raw text. Legality is never assumed.
type Agent interface {
	Propose(ctx context.Context, req Request) (string, error)
}

// AgentFunc adapts a plain function to Agent.
type AgentFunc func(ctx context.Context, req Request) (string, error)

func (f AgentFunc) Propose(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Kind tags a parsed Proposal.
type Kind int

const (
	Malformed Kind = iota
	Valid
)

func (k Kind) String() string {
	if k == Valid {
		return "valid"
	}
	return "malformed"
}

// Proposal is an agent answer after boundary parsing. From and To are set
// only for Valid proposals; Raw always holds the original text.
type Proposal struct {
	Kind Kind
	From string
	To   string
	// Promotion is the lower-case piece letter of a UCI answer like e7e8n.
	Promotion string
	Raw       string
}

func (p Proposal) Pair() rules.SquarePair { return rules.SquarePair{From: p.From, To: p.To} }

// UnderPromotes reports a promotion to a piece other than a queen.
func (p Proposal) UnderPromotes() bool { return p.Promotion != "" && p.Promotion != "q" }

func (p Proposal) String() string {
	if p.Kind == Valid {
		return p.From + p.To + p.Promotion
	}
	return fmt.Sprintf("malformed(%q)", truncate(p.Raw, 40))
}

var (
	reFromTo = regexp.MustCompile(`(?i)from:\s*([a-h][1-8])\s+to:\s*([a-h][1-8])`)
	reUCI    = regexp.MustCompile(`(?i)\b([a-h][1-8])-?([a-h][1-8])([qrbn])?\b`)
)

// Parse extracts a square pair from an agent answer. The labelled
// "from:e2 to:e4" form wins over a bare UCI pair.
func Parse(raw string) Proposal {
	if m := reFromTo.FindStringSubmatch(raw); m != nil {
		return Proposal{Kind: Valid, From: strings.ToLower(m[1]), To: strings.ToLower(m[2]), Raw: raw}
	}
	if m := reUCI.FindStringSubmatch(raw); m != nil && !strings.EqualFold(m[1], m[2]) {
		return Proposal{
			Kind:      Valid,
			From:      strings.ToLower(m[1]),
			To:        strings.ToLower(m[2]),
			Promotion: strings.ToLower(m[3]),
			Raw:       raw,
		}
	}
	return Proposal{Kind: Malformed, Raw: raw}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
