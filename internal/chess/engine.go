// Package chess plays moves with a local UCI engine and an optional
// polyglot opening book.
package chess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/chess/openingbook"
	"github.com/park285/cheese-duel/internal/chess/uci"
	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/proposal"
)

const defaultMoveTime = 300 * time.Millisecond

type Config struct {
	BinaryPath string
	SkillLevel int
	MoveTime   time.Duration
	BookPath   string
	Capacity   int
}

// Engine answers proposal requests with a book move when the position is
// known and with a timed search otherwise.
type Engine struct {
	pool     *uci.Pool
	book     *openingbook.Book
	moveTime time.Duration
}

func NewEngine(cfg Config) (*Engine, error) {
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Options:    uci.Options{SkillLevel: cfg.SkillLevel},
		Capacity:   cfg.Capacity,
	})
	if err != nil {
		return nil, err
	}
	book, err := openingbook.Open(cfg.BookPath)
	if err != nil {
		pool.Close()
		return nil, err
	}
	mt := cfg.MoveTime
	if mt <= 0 {
		mt = defaultMoveTime
	}
	return &Engine{pool: pool, book: book, moveTime: mt}, nil
}

// Propose implements proposal.Agent. The answer is a UCI move.
func (e *Engine) Propose(ctx context.Context, req proposal.Request) (string, error) {
	if res, err := e.book.Lookup(req.Position); err == nil {
		obslog.L().Debug("engine_book_move", zap.String("move", res.Move), zap.Uint16("weight", res.Weight))
		return res.Move, nil
	} else if !errors.Is(err, openingbook.ErrNotInBook) {
		obslog.L().Warn("engine_book_failed", zap.Error(err))
	}

	start := time.Now()
	s, err := e.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", proposal.ErrAgentUnavailable, err)
	}
	resp, err := s.Search(ctx, uci.SearchRequest{
		FEN:    req.Position,
		Limits: uci.Limits{MoveTimeMillis: int(e.moveTime / time.Millisecond)},
	})
	e.pool.Release(s, err)
	if err != nil {
		return "", fmt.Errorf("engine search: %w", err)
	}
	obslog.L().Debug("engine_search_done",
		zap.String("move", resp.BestMove),
		zap.Int("eval_cp", resp.EvalCP),
		zap.Duration("took", time.Since(start)),
	)
	return resp.BestMove, nil
}

func (e *Engine) Close() error {
	return e.pool.Close()
}
