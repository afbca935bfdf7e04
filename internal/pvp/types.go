package pvp

import (
	"errors"
	"time"

	"github.com/park285/cheese-duel/internal/archive"
	"github.com/park285/cheese-duel/internal/proposal"
	"github.com/park285/cheese-duel/internal/pvpchan"
	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

var (
	ErrInvalidArgs        = errors.New("invalid arguments")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionFull        = errors.New("session is full")
	ErrSessionEnded       = errors.New("session has ended")
	ErrNotParticipant     = errors.New("not a participant of this session")
	ErrAutomationDisabled = errors.New("automated play is not configured")
)

// Kind names a notification delivered to Subscribe listeners.
type Kind string

const (
	KindSessionChanged Kind = "session_changed"
	KindTurnChanged    Kind = "turn_changed"
	KindSessionEnded   Kind = "session_ended"
	KindSyncFailed     Kind = "sync_failed"
	KindAutomation     Kind = "automation"
)

// Notification is what the UI collaborator observes.
type Notification struct {
	Kind    Kind
	Session pvpchess.Session
	// Color is set for automation notifications.
	Color rules.Color
	Err   error
}

// Options wires a Manager. Store is required.
type Options struct {
	Store pvpchan.Store
	Rules rules.Engine
	// Archive가 nil이면 보관 생략.
	Archive archive.Repository
	// Driver가 nil이면 자동 플레이 비활성.
	Driver         *proposal.Driver
	PublishTimeout time.Duration
	NewID          func() string
	Now            func() time.Time
}
