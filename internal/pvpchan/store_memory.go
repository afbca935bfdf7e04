package pvpchan

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-duel/internal/pvpchess"
)

// MemoryStore is an in-process loopback Store with the same field semantics
// as RedisStore. Two managers sharing one MemoryStore behave like two clients
// sharing one Redis.
type MemoryStore struct {
	strict bool
	now    func() time.Time

	mu         sync.Mutex
	records    map[string]map[string]string
	subs       map[string]map[int]*memorySubscription
	nextID     int
	publishErr error
}

func NewMemoryStore(strict bool) *MemoryStore {
	return &MemoryStore{
		strict:  strict,
		now:     time.Now,
		records: make(map[string]map[string]string),
		subs:    make(map[string]map[int]*memorySubscription),
	}
}

// FailPublishes makes every Publish return err until called with nil.
func (m *MemoryStore) FailPublishes(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

func (m *MemoryStore) Create(_ context.Context, s pvpchess.Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrInvalidArgs
	}
	fields, err := encodeSession(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.records[s.ID]; ok {
		m.mu.Unlock()
		return ErrExists
	}
	m.records[s.ID] = make(map[string]string)
	m.writeLocked(s.ID, fields)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*pvpchess.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(id)
}

func (m *MemoryStore) ClaimSeat(_ context.Context, id string, color pvpchess.Color, userID string) (pvpchess.Session, error) {
	if strings.TrimSpace(userID) == "" || !color.Valid() {
		return pvpchess.Session{}, ErrInvalidArgs
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, err := m.loadLocked(id)
	if err != nil {
		return pvpchess.Session{}, err
	}
	if cur == nil {
		return pvpchess.Session{}, ErrNotFound
	}
	next, fields, err := claim(*cur, color, userID, m.now())
	if err != nil {
		return pvpchess.Session{}, err
	}
	if len(fields) > 0 {
		m.writeLocked(id, fields)
	}
	return next, nil
}

func (m *MemoryStore) Publish(ctx context.Context, id string, d pvpchess.Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields, err := encodeDelta(d)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if len(fields) == 0 {
		return nil
	}
	if m.strict && d.HasContent() {
		if plies := storedPlies(rec); plies != d.BasePlies {
			return fmt.Errorf("%w: stored %d plies, delta built on %d", ErrVersionConflict, plies, d.BasePlies)
		}
	}
	m.writeLocked(id, fields)
	return nil
}

func (m *MemoryStore) Subscribe(_ context.Context, id string, fn SnapshotHandler) (Subscription, error) {
	sub := &memorySubscription{
		store:   m,
		id:      id,
		fn:      fn,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[int]*memorySubscription)
	}
	sub.key = m.nextID
	m.nextID++
	m.subs[id][sub.key] = sub
	m.mu.Unlock()

	sub.notify()
	go sub.loop()
	return sub, nil
}

func (m *MemoryStore) writeLocked(id string, fields map[string]string) {
	rec := m.records[id]
	for k, v := range fields {
		rec[k] = v
	}
	version, _ := strconv.Atoi(rec[fieldVersion])
	rec[fieldVersion] = strconv.Itoa(version + 1)
	for _, sub := range m.subs[id] {
		sub.notify()
	}
}

func (m *MemoryStore) loadLocked(id string) (*pvpchess.Session, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	s, err := decodeSession(rec)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type memorySubscription struct {
	store *MemoryStore
	id    string
	key   int
	fn    SnapshotHandler

	once    sync.Once
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// 알림은 합쳐진다: 핸들러는 항상 최신 레코드를 읽음
func (s *memorySubscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			snap, err := s.store.Load(context.Background(), s.id)
			if err != nil || snap == nil {
				continue
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(*snap)
		}
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subs[s.id], s.key)
		s.store.mu.Unlock()
		close(s.done)
	})
	return nil
}
