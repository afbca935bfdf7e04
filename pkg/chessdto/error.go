package chessdto

import (
	"errors"

	"github.com/park285/cheese-duel/internal/msgcat"
	"github.com/park285/cheese-duel/internal/proposal"
	"github.com/park285/cheese-duel/internal/pvp"
	"github.com/park285/cheese-duel/internal/pvpchan"
	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

// Stable error codes seen by clients.
const (
	CodeTurnViolation      = "turn_violation"
	CodeIllegalMove        = "illegal_move"
	CodeSessionNotFound    = "session_not_found"
	CodeSessionFull        = "session_full"
	CodeSessionEnded       = "session_ended"
	CodeSessionNotActive   = "session_not_active"
	CodeNotParticipant     = "not_participant"
	CodeSyncFailure        = "sync_failure"
	CodeVersionConflict    = "version_conflict"
	CodeProposalExhausted  = "proposal_exhausted"
	CodeMalformedProposal  = "malformed_proposal"
	CodeAgentUnavailable   = "agent_unavailable"
	CodeAutomationDisabled = "automation_disabled"
	CodeInvalidArgs        = "invalid_arguments"
	CodeInternal           = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}

type codeEntry struct {
	sentinel  error
	code      string
	key       string
	fallback  string
	retryable bool
}

// 먼저 매칭되는 항목이 우선: 구체적인 sentinel을 앞에 둔다.
var codeTable = []codeEntry{
	{pvpchan.ErrVersionConflict, CodeVersionConflict, "sync.conflict", "session changed concurrently", true},
	{pvpchess.ErrSyncFailure, CodeSyncFailure, "sync.failure", "sync failure", true},
	{pvpchess.ErrTurnViolation, CodeTurnViolation, "move.turn_violation", "It's not your turn!", false},
	{rules.ErrIllegalMove, CodeIllegalMove, "move.illegal", "illegal move", false},
	{pvp.ErrSessionNotFound, CodeSessionNotFound, "join.not_found", "Game not found", false},
	{pvp.ErrSessionFull, CodeSessionFull, "join.full", "Game is full", false},
	{pvp.ErrSessionEnded, CodeSessionEnded, "session.ended", "session has ended", false},
	{pvpchess.ErrSessionNotActive, CodeSessionNotActive, "session.not_active", "session not active", false},
	{pvp.ErrNotParticipant, CodeNotParticipant, "move.not_participant", "not a participant", false},
	{proposal.ErrProposalExhausted, CodeProposalExhausted, "proposal.exhausted", "proposal attempts exhausted", true},
	{proposal.ErrMalformedProposal, CodeMalformedProposal, "proposal.malformed", "malformed proposal", false},
	{proposal.ErrAgentUnavailable, CodeAgentUnavailable, "proposal.unavailable", "agent unavailable", true},
	{pvp.ErrAutomationDisabled, CodeAutomationDisabled, "proposal.disabled", "automation not configured", false},
	{pvp.ErrInvalidArgs, CodeInvalidArgs, "request.invalid", "invalid arguments", false},
}

// ErrorFor maps a domain error onto its client code. data feeds the message template.
func ErrorFor(err error, data map[string]any) DomainError {
	var de DomainError
	if errors.As(err, &de) {
		return de
	}
	cat := msgcat.Default()
	for _, e := range codeTable {
		if errors.Is(err, e.sentinel) {
			return DomainError{
				Code:      e.code,
				Message:   cat.Text(e.key, data, e.fallback),
				Retryable: e.retryable,
			}
		}
	}
	return DomainError{Code: CodeInternal, Message: cat.Text("internal", nil, "internal error")}
}
