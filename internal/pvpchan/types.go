package pvpchan

import (
	"context"
	"strings"
	"time"

	"github.com/park285/cheese-duel/internal/pvpchess"
)

const (
	defaultTTL  = 24 * time.Hour
	loadTimeout = 5 * time.Second
)

// SnapshotHandler receives every observed state of a session record.
// Calls for one subscription are sequential.
type SnapshotHandler func(pvpchess.Session)

// Subscription은 Subscribe가 돌려주는 구독 해제 핸들.
type Subscription interface {
	Close() error
}

// Store is the shared record plus its change feed.
type Store interface {
	Create(ctx context.Context, s pvpchess.Session) error
	Load(ctx context.Context, id string) (*pvpchess.Session, error)
	ClaimSeat(ctx context.Context, id string, color pvpchess.Color, userID string) (pvpchess.Session, error)
	Publish(ctx context.Context, id string, d pvpchess.Delta) error
	Subscribe(ctx context.Context, id string, fn SnapshotHandler) (Subscription, error)
}

// 오류 정의
var (
	ErrInvalidArgs     = errf("invalid arguments")
	ErrNotFound        = errf("session not found or expired")
	ErrExists          = errf("session already exists")
	ErrSeatTaken       = errf("seat already taken")
	ErrEnded           = errf("session already ended")
	ErrVersionConflict = errf("session changed since the delta was built")
	ErrClosed          = errf("store closed")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }

func sessionKey(id string) string    { return "duel:session:" + strings.TrimSpace(id) }
func eventsChannel(id string) string { return sessionKey(id) + ":events" }
