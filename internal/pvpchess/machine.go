package pvpchess

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/rules"
)

// EventKind names a local notification.
type EventKind string

const (
	EventSessionChanged EventKind = "session_changed"
	EventTurnChanged    EventKind = "turn_changed"
	EventEnded          EventKind = "session_ended"
	EventSyncFailed     EventKind = "sync_failed"
)

// Event is delivered to listeners after the machine lock is released.
type Event struct {
	Kind    EventKind
	Session Session
	Err     error
}

// Options configures a Machine.
type Options struct {
	// Publisher receives a delta for every local change. Nil keeps the machine local.
	Publisher      Publisher
	PublishTimeout time.Duration
	Now            func() time.Time
}

// Machine is one participant's view of a session: it applies local moves,
// merges remote snapshots and schedules pushes of local changes.
type Machine struct {
	rules  rules.Engine
	now    func() time.Time
	pusher *pusher

	mu       sync.Mutex
	state    State
	id       string
	players  Players
	position string
	log      MoveLog
	lastMove *Move
	updated  time.Time

	lmu       sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// NewMachine returns an Idle machine.
func NewMachine(engine rules.Engine, opts Options) *Machine {
	if engine == nil {
		engine = rules.NewChess()
	}
	m := &Machine{
		rules:     engine,
		now:       opts.Now,
		listeners: make(map[int]func(Event)),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if opts.Publisher != nil {
		m.pusher = newPusher(opts.Publisher, opts.PublishTimeout, m.publishFailed)
	}
	return m
}

// OnEvent registers fn for notifications and returns a func removing it.
func (m *Machine) OnEvent(fn func(Event)) func() {
	m.lmu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.lmu.Unlock()
	return func() {
		m.lmu.Lock()
		delete(m.listeners, id)
		m.lmu.Unlock()
	}
}

// Create allocates a fresh session with owner playing white. Idle → Waiting.
func (m *Machine) Create(id, owner string) (Session, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		st := m.state
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: create from %s", ErrInvalidTransition, st)
	}
	m.id = id
	m.players = Players{White: owner}
	m.position = m.rules.InitialPosition()
	m.log.reset()
	m.lastMove = nil
	m.updated = m.now()
	m.state = StateWaiting
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(Event{Kind: EventSessionChanged, Session: s})
	return s, nil
}

// Adopt loads an existing record into an Idle machine. The move log is
// authoritative; a position that disagrees with it is replaced by the replay.
func (m *Machine) Adopt(s Session) (Session, error) {
	start := m.rules.InitialPosition()
	pos, err := rules.Replay(m.rules, start, pairsOf(s.MoveLog))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if s.Position != "" && s.Position != pos {
		obslog.Session(s.ID).Warn("adopt_position_repaired", zap.Int("ply", len(s.MoveLog)))
	}

	m.mu.Lock()
	if m.state != StateIdle {
		st := m.state
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: adopt from %s", ErrInvalidTransition, st)
	}
	m.id = s.ID
	m.players = s.Players
	m.position = pos
	m.log.replace(s.MoveLog)
	m.lastMove = nil
	if last, ok := m.log.Last(); ok {
		m.lastMove = &last
	}
	m.updated = s.LastUpdated
	if m.updated.IsZero() {
		m.updated = m.now()
	}
	m.state = stateFor(s.Status)
	if m.state == StateIdle || (m.state == StateActive && !m.players.Full()) {
		m.state = StateWaiting
	}
	if m.state == StateActive && m.terminalLocked() {
		m.state = StateEnded
	}
	out := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(Event{Kind: EventSessionChanged, Session: out})
	return out, nil
}

// AssignSecondPlayer seats id as black. Waiting → Active.
func (m *Machine) AssignSecondPlayer(id string) (Session, error) {
	m.mu.Lock()
	switch {
	case m.state != StateWaiting:
		st := m.state
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: assign second player in %s", ErrInvalidTransition, st)
	case strings.TrimSpace(id) == "" || id == m.players.White || m.players.Black != "":
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: black seat unavailable", ErrInvalidTransition)
	}
	m.players.Black = id
	m.state = StateActive
	m.updated = m.now()
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(Event{Kind: EventSessionChanged, Session: s})
	return s, nil
}

// AttemptMove applies from→to for requester. Validation failures leave the
// session untouched. On success the delta is queued for publishing.
func (m *Machine) AttemptMove(from, to string, requester Color) (Move, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))

	m.mu.Lock()
	if m.state != StateActive {
		st := m.state
		m.mu.Unlock()
		return Move{}, fmt.Errorf("%w: %s", ErrSessionNotActive, st)
	}
	side := m.sideToMoveLocked()
	if requester != side {
		m.mu.Unlock()
		return Move{}, fmt.Errorf("%w: %s to move", ErrTurnViolation, side)
	}
	applied, err := m.rules.ApplyMove(m.position, from, to)
	if err != nil {
		m.mu.Unlock()
		return Move{}, err
	}

	mv := Move{
		From:          from,
		To:            to,
		Piece:         applied.Piece,
		Mover:         applied.Mover,
		Notation:      applied.Notation,
		CapturedPiece: applied.CapturedPiece,
	}
	base := m.log.Len()
	m.log.Append(mv)
	m.position = applied.Position
	last := mv
	m.lastMove = &last
	m.updated = m.now()
	ended := m.terminalLocked()
	if ended {
		m.state = StateEnded
	}
	s := m.snapshotLocked()
	m.schedule(Delta{
		CurrentTurn: s.CurrentTurn,
		Position:    s.Position,
		MoveLog:     s.MoveLog,
		BasePlies:   base,
		Status:      s.Status,
		LastMove:    s.LastMove,
		LastUpdated: s.LastUpdated,
	})
	m.mu.Unlock()

	obslog.Session(s.ID).Info("move_applied",
		zap.String("color", string(mv.Mover)),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("san", mv.Notation),
		zap.Int("ply", len(s.MoveLog)),
	)
	m.emit(Event{Kind: EventSessionChanged, Session: s})
	m.emit(Event{Kind: EventTurnChanged, Session: s})
	if ended {
		m.emit(Event{Kind: EventEnded, Session: s})
	}
	return mv, nil
}

// MergeRemoteSnapshot folds a snapshot observed on the sync channel into
// local state. Only forward progress is adopted; equal snapshots are no-ops.
func (m *Machine) MergeRemoteSnapshot(snap Session) (MergeResult, error) {
	m.mu.Lock()
	if m.state == StateIdle || (snap.ID != "" && snap.ID != m.id) {
		m.mu.Unlock()
		return MergeNoop, nil
	}
	prevSide := m.sideToMoveLocked()
	prevState := m.state

	metaChanged := m.mergePlayersLocked(snap.Players)
	content, err := MergeNoop, error(nil)
	if snap.Position != "" && snap.Position != m.position {
		content, err = m.mergeContentLocked(snap)
	}
	if m.mergeStatusLocked(snap.Status) {
		metaChanged = true
	}

	changed := metaChanged || content == MergeAdopted
	if changed {
		if snap.LastUpdated.After(m.updated) {
			m.updated = snap.LastUpdated
		}
	}
	s := m.snapshotLocked()
	m.mu.Unlock()

	if !changed {
		return content, err
	}
	m.emit(Event{Kind: EventSessionChanged, Session: s})
	if s.CurrentTurn != prevSide && s.Status != StatusEnded {
		m.emit(Event{Kind: EventTurnChanged, Session: s})
	}
	if prevState != StateEnded && s.Status == StatusEnded {
		m.emit(Event{Kind: EventEnded, Session: s})
	}
	if content == MergeAdopted {
		return MergeAdopted, err
	}
	return MergeMetadata, err
}

// Reset clears the move log and returns to Waiting with the initial position.
func (m *Machine) Reset() (Session, error) {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: reset while idle", ErrInvalidTransition)
	}
	m.log.reset()
	m.position = m.rules.InitialPosition()
	m.lastMove = nil
	m.state = StateWaiting
	m.updated = m.now()
	s := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(Event{Kind: EventSessionChanged, Session: s})
	return s, nil
}

// Abandon ends the session from any attached state. It reports false when
// the session was already ended or never attached.
func (m *Machine) Abandon() (Session, bool) {
	m.mu.Lock()
	if m.state == StateIdle || m.state == StateEnded {
		s := m.snapshotLocked()
		m.mu.Unlock()
		return s, false
	}
	m.state = StateEnded
	m.updated = m.now()
	s := m.snapshotLocked()
	m.schedule(Delta{Status: StatusEnded, LastUpdated: s.LastUpdated})
	m.mu.Unlock()

	m.emit(Event{Kind: EventSessionChanged, Session: s})
	m.emit(Event{Kind: EventEnded, Session: s})
	return s, true
}

// Session returns a copy of the current record.
func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) SideToMove() Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sideToMoveLocked()
}

// Verdict reports the rules verdict for the game so far. Draws by
// repetition need the move log, not just the position.
func (m *Machine) Verdict() (rules.Verdict, error) {
	m.mu.Lock()
	pos, pairs := m.position, m.log.Pairs()
	m.mu.Unlock()
	if v, err := m.rules.GameVerdict(pairs); err == nil {
		return v, nil
	}
	return m.rules.Verdict(pos)
}

// Rules exposes the engine used for validation.
func (m *Machine) Rules() rules.Engine { return m.rules }

// Flush waits until queued pushes have been attempted.
func (m *Machine) Flush(ctx context.Context) error {
	if m.pusher == nil {
		return nil
	}
	return m.pusher.flush(ctx)
}

// Close publishes what is queued and stops the push worker.
func (m *Machine) Close() {
	if m.pusher != nil {
		m.pusher.close()
	}
}

func (m *Machine) schedule(d Delta) {
	if m.pusher == nil || m.id == "" {
		return
	}
	m.pusher.enqueue(pushJob{sessionID: m.id, delta: d})
}

func (m *Machine) publishFailed(job pushJob, err error) {
	err = fmt.Errorf("%w: %w", ErrSyncFailure, err)
	obslog.Session(job.sessionID).Warn("sync_publish_failed",
		zap.Int("ply", len(job.delta.MoveLog)),
		zap.String("status", string(job.delta.Status)),
		zap.Error(err),
	)
	m.emit(Event{
		Kind: EventSyncFailed,
		Session: Session{
			ID:       job.sessionID,
			Position: job.delta.Position,
			MoveLog:  job.delta.MoveLog,
			Status:   job.delta.Status,
		},
		Err: err,
	})
}

func (m *Machine) emit(ev Event) {
	m.lmu.Lock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.lmu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (m *Machine) mergePlayersLocked(p Players) bool {
	changed := false
	if m.players.White == "" && p.White != "" {
		m.players.White = p.White
		changed = true
	}
	if m.players.Black == "" && p.Black != "" && p.Black != m.players.White {
		m.players.Black = p.Black
		changed = true
	}
	return changed
}

func (m *Machine) mergeStatusLocked(st Status) bool {
	switch st {
	case StatusActive:
		if m.state == StateWaiting && m.players.Full() {
			m.state = StateActive
			return true
		}
	case StatusEnded:
		if m.state != StateEnded {
			m.state = StateEnded
			return true
		}
	}
	return false
}

func (m *Machine) mergeContentLocked(snap Session) (MergeResult, error) {
	lg := obslog.Session(m.id)
	local := m.log.Len()
	if len(snap.MoveLog) < local {
		lg.Debug("merge_stale", zap.Int("local_ply", local), zap.Int("remote_ply", len(snap.MoveLog)))
		return MergeStale, nil
	}

	prefix := m.log.CommonPrefix(snap.MoveLog)
	if prefix == local {
		tail := snap.MoveLog[local:]
		if len(tail) == 0 {
			// 같은 기보인데 포지션 문자열만 다름: 로컬 리플레이를 신뢰
			lg.Warn("merge_position_mismatch", zap.Int("ply", local))
			return MergeNoop, nil
		}
		pos, checked, err := m.replayTail(m.position, local, tail)
		if err != nil {
			lg.Warn("merge_rejected", zap.Error(err))
			return MergeRejected, err
		}
		for i, mv := range checked {
			if _, err := m.log.AppendAt(local+i, mv); err != nil {
				return MergeRejected, err
			}
		}
		if pos != snap.Position {
			lg.Warn("merge_position_repaired", zap.Int("ply", m.log.Len()))
		}
		m.position = pos
	} else {
		// 앞부분이 갈라진 동시 기록: 더 긴(또는 나중에 관측된) 기보를 채택
		pos, checked, err := m.replayTail(m.rules.InitialPosition(), 0, snap.MoveLog)
		if err != nil {
			lg.Warn("merge_rejected", zap.Error(err))
			return MergeRejected, err
		}
		lg.Warn("merge_diverged",
			zap.Int("diverged_at", prefix+1),
			zap.Int("local_ply", local),
			zap.Int("remote_ply", len(snap.MoveLog)),
		)
		m.log.replace(checked)
		m.position = pos
	}

	if last, ok := m.log.Last(); ok {
		m.lastMove = &last
	}
	if m.terminalLocked() {
		m.state = StateEnded
	}
	lg.Info("merge_adopted", zap.Int("ply", m.log.Len()))
	return MergeAdopted, nil
}

// replayTail validates moves from pos and fills derived fields missing on the wire.
func (m *Machine) replayTail(pos string, base int, moves []Move) (string, []Move, error) {
	out := make([]Move, 0, len(moves))
	for i, mv := range moves {
		applied, err := m.rules.ApplyMove(pos, mv.From, mv.To)
		if err != nil {
			return "", nil, fmt.Errorf("%w: ply %d: %v", ErrCorruptSnapshot, base+i+1, err)
		}
		if mv.Mover != "" && mv.Mover != applied.Mover {
			return "", nil, fmt.Errorf("%w: ply %d mover %s, expected %s", ErrCorruptSnapshot, base+i+1, mv.Mover, applied.Mover)
		}
		mv.From = strings.ToLower(mv.From)
		mv.To = strings.ToLower(mv.To)
		mv.Mover = applied.Mover
		if mv.Piece == "" {
			mv.Piece = applied.Piece
		}
		if mv.Notation == "" {
			mv.Notation = applied.Notation
		}
		if mv.CapturedPiece == "" {
			mv.CapturedPiece = applied.CapturedPiece
		}
		out = append(out, mv)
		pos = applied.Position
	}
	return pos, out, nil
}

func (m *Machine) terminalLocked() bool {
	v, err := m.rules.GameVerdict(m.log.Pairs())
	if err != nil {
		return m.rules.IsTerminal(m.position)
	}
	return v.Terminal
}

func (m *Machine) sideToMoveLocked() Color {
	if m.position != "" {
		if c, err := m.rules.SideToMove(m.position); err == nil {
			return c
		}
	}
	if m.log.Len()%2 == 0 {
		return White
	}
	return Black
}

func (m *Machine) snapshotLocked() Session {
	s := Session{
		ID:          m.id,
		Players:     m.players,
		Position:    m.position,
		MoveLog:     m.log.Moves(),
		Status:      statusFor(m.state),
		LastUpdated: m.updated,
	}
	if m.state != StateIdle {
		s.CurrentTurn = m.sideToMoveLocked()
	}
	if m.lastMove != nil {
		mv := *m.lastMove
		s.LastMove = &mv
	}
	if s.MoveLog == nil {
		s.MoveLog = []Move{}
	}
	return s
}

func statusFor(st State) Status {
	switch st {
	case StateWaiting:
		return StatusWaiting
	case StateActive:
		return StatusActive
	case StateEnded:
		return StatusEnded
	}
	return ""
}

func pairsOf(moves []Move) []rules.SquarePair {
	out := make([]rules.SquarePair, len(moves))
	for i, mv := range moves {
		out[i] = mv.Pair()
	}
	return out
}
