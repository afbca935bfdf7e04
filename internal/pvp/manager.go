package pvp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/archive"
	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/proposal"
	"github.com/park285/cheese-duel/internal/pvpchan"
	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

const (
	archiveTimeout = 5 * time.Second
	closeTimeout   = 3 * time.Second
)

// Manager owns the locally attached sessions of one client: their state
// machines, store subscriptions and automated players.
type Manager struct {
	store          pvpchan.Store
	rules          rules.Engine
	archive        archive.Repository
	driver         *proposal.Driver
	publishTimeout time.Duration
	newID          func() string
	now            func() time.Time

	mu       sync.Mutex
	sessions map[string]*handle

	lmu       sync.Mutex
	listeners map[int]func(Notification)
	nextID    int
}

type handle struct {
	id        string
	machine   *pvpchess.Machine
	startedAt time.Time
	offEvents func()

	mu          sync.Mutex
	sub         pvpchan.Subscription
	autos       map[rules.Color]*proposal.Automation
	archiveOnce sync.Once
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store required", ErrInvalidArgs)
	}
	m := &Manager{
		store:          opts.Store,
		rules:          opts.Rules,
		archive:        opts.Archive,
		driver:         opts.Driver,
		publishTimeout: opts.PublishTimeout,
		newID:          opts.NewID,
		now:            opts.Now,
		sessions:       make(map[string]*handle),
		listeners:      make(map[int]func(Notification)),
	}
	if m.rules == nil {
		m.rules = rules.NewChess()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Subscribe registers fn for notifications of every attached session.
func (m *Manager) Subscribe(fn func(Notification)) func() {
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

// Create opens a new session in Waiting with ownerID playing white.
func (m *Manager) Create(ctx context.Context, ownerID string) (pvpchess.Session, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return pvpchess.Session{}, ErrInvalidArgs
	}
	id := m.newID()
	h := m.newHandle(id, m.now())
	s, err := h.machine.Create(id, owner)
	if err != nil {
		h.close()
		return pvpchess.Session{}, err
	}
	if err := m.store.Create(ctx, s); err != nil {
		h.close()
		return pvpchess.Session{}, fmt.Errorf("%w: %w", pvpchess.ErrSyncFailure, err)
	}
	if _, err := m.attach(ctx, h); err != nil {
		return pvpchess.Session{}, err
	}
	obslog.Session(id).Info("session_created", zap.String("owner", owner))
	return s, nil
}

// Join seats joinerID as black. A participant joining its own session
// again gets the current record back.
func (m *Manager) Join(ctx context.Context, id, joinerID string) (pvpchess.Session, error) {
	id, joiner := strings.TrimSpace(id), strings.TrimSpace(joinerID)
	if id == "" || joiner == "" {
		return pvpchess.Session{}, ErrInvalidArgs
	}
	claimed, err := m.store.ClaimSeat(ctx, id, pvpchess.Black, joiner)
	if err != nil {
		return pvpchess.Session{}, mapStoreErr(err)
	}
	obslog.Session(id).Info("session_joined", zap.String("player", joiner))

	if h := m.lookup(id); h != nil {
		if _, err := h.machine.MergeRemoteSnapshot(claimed); err != nil {
			return pvpchess.Session{}, err
		}
		return h.machine.Session(), nil
	}
	return m.open(ctx, claimed)
}

// Attach는 좌석 없이 기존 세션을 따라간다.
func (m *Manager) Attach(ctx context.Context, id string) (pvpchess.Session, error) {
	if h := m.lookup(id); h != nil {
		return h.machine.Session(), nil
	}
	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return pvpchess.Session{}, fmt.Errorf("%w: %w", pvpchess.ErrSyncFailure, err)
	}
	if snap == nil {
		return pvpchess.Session{}, ErrSessionNotFound
	}
	return m.open(ctx, *snap)
}

// Leave는 세션을 종료하고 구독을 끊는다. 두 번 호출해도 무방.
func (m *Manager) Leave(ctx context.Context, id string) error {
	h := m.remove(id)
	if h == nil {
		err := m.store.Publish(ctx, id, pvpchess.Delta{Status: pvpchess.StatusEnded, LastUpdated: m.now().UTC()})
		if err != nil {
			return mapStoreErr(err)
		}
		return nil
	}

	var (
		fmu     sync.Mutex
		pushErr error
	)
	off := h.machine.OnEvent(func(ev pvpchess.Event) {
		if ev.Kind == pvpchess.EventSyncFailed {
			fmu.Lock()
			pushErr = ev.Err
			fmu.Unlock()
		}
	})
	h.stopAutomation()
	h.closeSub()
	_, changed := h.machine.Abandon()
	flushErr := h.machine.Flush(ctx)
	off()
	h.close()

	if changed {
		obslog.Session(id).Info("session_left")
	}
	fmu.Lock()
	defer fmu.Unlock()
	if pushErr != nil {
		return pushErr
	}
	if flushErr != nil {
		return fmt.Errorf("%w: %w", pvpchess.ErrSyncFailure, flushErr)
	}
	return nil
}

// AttemptMove plays from→to for playerID.
func (m *Manager) AttemptMove(id, playerID, from, to string) (pvpchess.Move, error) {
	h := m.lookup(id)
	if h == nil {
		return pvpchess.Move{}, ErrSessionNotFound
	}
	color, ok := h.machine.Session().Players.Seat(strings.TrimSpace(playerID))
	if !ok {
		return pvpchess.Move{}, ErrNotParticipant
	}
	return h.machine.AttemptMove(from, to, color)
}

// Session returns the local view of an attached session.
func (m *Manager) Session(id string) (pvpchess.Session, error) {
	h := m.lookup(id)
	if h == nil {
		return pvpchess.Session{}, ErrSessionNotFound
	}
	return h.machine.Session(), nil
}

// Verdict reports the rules verdict of an attached session.
func (m *Manager) Verdict(id string) (rules.Verdict, error) {
	h := m.lookup(id)
	if h == nil {
		return rules.Verdict{}, ErrSessionNotFound
	}
	return h.machine.Verdict()
}

// Flush waits for queued pushes of a session.
func (m *Manager) Flush(ctx context.Context, id string) error {
	h := m.lookup(id)
	if h == nil {
		return ErrSessionNotFound
	}
	return h.machine.Flush(ctx)
}

// EnableAutomation switches the automated player for color on or off.
// Enabling again after exhaustion starts over with a full attempt budget.
func (m *Manager) EnableAutomation(id string, color rules.Color, enabled bool) error {
	if m.driver == nil {
		return ErrAutomationDisabled
	}
	if !color.Valid() {
		return ErrInvalidArgs
	}
	h := m.lookup(id)
	if h == nil {
		return ErrSessionNotFound
	}
	a := h.automation(color, func() *proposal.Automation {
		return proposal.NewAutomation(m.driver, h.machine, color, func(r proposal.Result) {
			m.emit(Notification{Kind: KindAutomation, Session: h.machine.Session(), Color: r.Color, Err: r.Err})
		})
	})
	if enabled {
		if h.machine.State() == pvpchess.StateEnded {
			return ErrSessionEnded
		}
		a.Enable()
		return nil
	}
	a.Disable()
	return nil
}

// Automation returns the automated player for color, or nil when it was
// never enabled.
func (m *Manager) Automation(id string, color rules.Color) (*proposal.Automation, error) {
	h := m.lookup(id)
	if h == nil {
		return nil, ErrSessionNotFound
	}
	return h.automation(color, nil), nil
}

// Close는 세션을 종료하지 않고 모두 분리.
func (m *Manager) Close() {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.sessions))
	for id, h := range m.sessions {
		handles = append(handles, h)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.stopAutomation()
		h.closeSub()
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		_ = h.machine.Flush(ctx)
		cancel()
		h.close()
	}
}

func (m *Manager) newHandle(id string, startedAt time.Time) *handle {
	h := &handle{
		id: id,
		machine: pvpchess.NewMachine(m.rules, pvpchess.Options{
			Publisher:      m.store,
			PublishTimeout: m.publishTimeout,
			Now:            m.now,
		}),
		startedAt: startedAt,
		autos:     make(map[rules.Color]*proposal.Automation),
	}
	h.offEvents = h.machine.OnEvent(func(ev pvpchess.Event) { m.onEvent(h, ev) })
	return h
}

func (m *Manager) open(ctx context.Context, snap pvpchess.Session) (pvpchess.Session, error) {
	h := m.newHandle(snap.ID, time.Time{})
	if _, err := h.machine.Adopt(snap); err != nil {
		h.close()
		return pvpchess.Session{}, err
	}
	return m.attach(ctx, h)
}

// attach registers h and subscribes it to the store. If another handle for
// the same id won the race, h is dropped in its favour.
func (m *Manager) attach(ctx context.Context, h *handle) (pvpchess.Session, error) {
	m.mu.Lock()
	if cur, ok := m.sessions[h.id]; ok {
		m.mu.Unlock()
		h.close()
		return cur.machine.Session(), nil
	}
	m.sessions[h.id] = h
	m.mu.Unlock()

	sub, err := m.store.Subscribe(ctx, h.id, func(snap pvpchess.Session) {
		if _, err := h.machine.MergeRemoteSnapshot(snap); err != nil {
			obslog.Session(h.id).Warn("merge_failed", zap.Error(err))
		}
	})
	if err != nil {
		m.remove(h.id)
		h.close()
		return pvpchess.Session{}, fmt.Errorf("%w: %w", pvpchess.ErrSyncFailure, err)
	}
	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()
	return h.machine.Session(), nil
}

func (m *Manager) onEvent(h *handle, ev pvpchess.Event) {
	switch ev.Kind {
	case pvpchess.EventSessionChanged:
		m.emit(Notification{Kind: KindSessionChanged, Session: ev.Session})
		h.kick()
	case pvpchess.EventTurnChanged:
		m.emit(Notification{Kind: KindTurnChanged, Session: ev.Session})
		h.kick()
	case pvpchess.EventEnded:
		h.stopAutomation()
		m.archiveGame(h, ev.Session)
		m.emit(Notification{Kind: KindSessionEnded, Session: ev.Session})
	case pvpchess.EventSyncFailed:
		m.emit(Notification{Kind: KindSyncFailed, Session: ev.Session, Err: ev.Err})
	}
}

func (m *Manager) archiveGame(h *handle, s pvpchess.Session) {
	if m.archive == nil {
		return
	}
	h.archiveOnce.Do(func() {
		v, err := h.machine.Verdict()
		if err != nil {
			v = rules.Verdict{}
		}
		g := archive.FromSession(s, v, h.startedAt)
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		lg := obslog.Session(s.ID)
		switch err := m.archive.Save(ctx, g); {
		case err == nil:
			lg.Info("archive_saved", zap.String("result", g.Result), zap.String("method", g.Method), zap.Int("ply", g.Plies))
		case errors.Is(err, archive.ErrDuplicateGame):
			// 상대 클라이언트가 먼저 보관함
			lg.Debug("archive_duplicate")
		default:
			lg.Warn("archive_failed", zap.Error(err))
		}
	})
}

func (m *Manager) emit(n Notification) {
	m.lmu.Lock()
	fns := make([]func(Notification), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.lmu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

func (m *Manager) lookup(id string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[strings.TrimSpace(id)]
}

func (m *Manager) remove(id string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	id = strings.TrimSpace(id)
	h := m.sessions[id]
	delete(m.sessions, id)
	return h
}

func (h *handle) automation(color rules.Color, create func() *proposal.Automation) *proposal.Automation {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.autos[color]
	if !ok && create != nil {
		a = create()
		h.autos[color] = a
	}
	return a
}

func (h *handle) kick() {
	for _, a := range h.automations() {
		a.Kick()
	}
}

func (h *handle) stopAutomation() {
	for _, a := range h.automations() {
		a.Disable()
	}
}

func (h *handle) automations() []*proposal.Automation {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*proposal.Automation, 0, len(h.autos))
	for _, a := range h.autos {
		out = append(out, a)
	}
	return out
}

func (h *handle) closeSub() {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}
}

func (h *handle) close() {
	if h.offEvents != nil {
		h.offEvents()
	}
	h.machine.Close()
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, pvpchan.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, pvpchan.ErrSeatTaken):
		return ErrSessionFull
	case errors.Is(err, pvpchan.ErrEnded):
		return ErrSessionEnded
	case errors.Is(err, pvpchan.ErrInvalidArgs):
		return ErrInvalidArgs
	}
	return fmt.Errorf("%w: %w", pvpchess.ErrSyncFailure, err)
}
