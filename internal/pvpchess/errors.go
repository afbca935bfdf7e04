package pvpchess

import (
	"github.com/park285/cheese-duel/internal/rules"
)

var (
	ErrTurnViolation     = errf("turn violation")
	ErrIllegalMove       = rules.ErrIllegalMove
	ErrSessionNotActive  = errf("session not active")
	ErrInvalidTransition = errf("invalid state transition")
	ErrSyncFailure       = errf("sync failure")
	ErrCorruptSnapshot   = errf("snapshot move log does not replay")
	ErrLogDiverged       = errf("move log diverged")
	ErrLogGap            = errf("move log gap")
	ErrClosed            = errf("machine closed")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
