package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Schema는 보관 테이블이 없을 때 생성.
const Schema = `
CREATE TABLE IF NOT EXISTS duel_games (
	session_id   TEXT PRIMARY KEY,
	white_id     TEXT NOT NULL,
	black_id     TEXT NOT NULL,
	result       TEXT NOT NULL,
	result_method TEXT NOT NULL,
	moves_uci    TEXT[] NOT NULL,
	moves_san    TEXT[] NOT NULL,
	eco          TEXT NOT NULL DEFAULT '',
	opening      TEXT NOT NULL DEFAULT '',
	pgn          TEXT NOT NULL,
	plies        INTEGER NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	ended_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS duel_games_white_idx ON duel_games (white_id, ended_at DESC);
CREATE INDEX IF NOT EXISTS duel_games_black_idx ON duel_games (black_id, ended_at DESC);`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens and pings databaseURL.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

// EnsureSchema applies Schema.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply archive schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save inserts g once; a second save for the same session is ErrDuplicateGame.
func (r *PostgresRepository) Save(ctx context.Context, g *Game) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	const q = `
		INSERT INTO duel_games (
			session_id, white_id, black_id, result, result_method,
			moves_uci, moves_san, eco, opening, pgn, plies, started_at, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (session_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q,
		g.SessionID, g.WhiteID, g.BlackID, g.Result, g.Method,
		pq.Array(g.MovesUCI), pq.Array(g.MovesSAN),
		g.ECO, g.Opening, g.PGN, g.Plies, g.StartedAt, g.EndedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateGame
		}
		return fmt.Errorf("insert duel game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateGame
	}
	return nil
}

const selectColumns = `session_id, white_id, black_id, result, result_method,
	moves_uci, moves_san, eco, opening, pgn, plies, started_at, ended_at`

func (r *PostgresRepository) Get(ctx context.Context, sessionID string) (*Game, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM duel_games WHERE session_id = $1`, sessionID)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *PostgresRepository) RecentByPlayer(ctx context.Context, playerID string, limit int) ([]*Game, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM duel_games
		WHERE white_id = $1 OR black_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select duel games: %w", err)
	}
	defer rows.Close()

	out := make([]*Game, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*Game, error) {
	var g Game
	err := row.Scan(
		&g.SessionID, &g.WhiteID, &g.BlackID, &g.Result, &g.Method,
		pq.Array(&g.MovesUCI), pq.Array(&g.MovesSAN),
		&g.ECO, &g.Opening, &g.PGN, &g.Plies, &g.StartedAt, &g.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}
