package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository is used when no DATABASE_URL is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	games    map[string]*Game
	byPlayer map[string][]*Game
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		games:    make(map[string]*Game),
		byPlayer: make(map[string][]*Game),
	}
}

func (m *MemoryRepository) Save(_ context.Context, g *Game) error {
	if g == nil {
		return nil
	}
	key := strings.TrimSpace(g.SessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[key]; exists {
		return ErrDuplicateGame
	}
	cp := cloneGame(g)
	m.games[key] = cp
	for _, p := range []string{g.WhiteID, g.BlackID} {
		if p != "" {
			m.byPlayer[p] = append(m.byPlayer[p], cp)
		}
	}
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, sessionID string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.games[strings.TrimSpace(sessionID)]; ok {
		return cloneGame(g), nil
	}
	return nil, nil
}

func (m *MemoryRepository) RecentByPlayer(_ context.Context, playerID string, limit int) ([]*Game, error) {
	m.mu.RLock()
	items := append([]*Game(nil), m.byPlayer[playerID]...)
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].EndedAt.After(items[j].EndedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]*Game, len(items))
	for i, g := range items {
		out[i] = cloneGame(g)
	}
	return out, nil
}

func (m *MemoryRepository) Close() error { return nil }

func cloneGame(g *Game) *Game {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}
