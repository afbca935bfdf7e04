package chessbuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/archive"
	corechess "github.com/park285/cheese-duel/internal/chess"
	"github.com/park285/cheese-duel/internal/config"
	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/proposal"
	"github.com/park285/cheese-duel/internal/proposal/llm"
	"github.com/park285/cheese-duel/internal/proposal/openrouter"
	"github.com/park285/cheese-duel/internal/pvp"
	"github.com/park285/cheese-duel/internal/pvpchan"
)

type Deps struct {
	Redis   *redis.Client
	Store   pvpchan.Store
	Archive archive.Repository
	// AGENT_KIND=none이면 nil.
	Driver  *proposal.Driver
	Manager *pvp.Manager

	closers []func() error
}

func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.RequireRedis(); err != nil {
		return nil, err
	}
	d := &Deps{}

	rdb, err := pvpchan.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	d.Redis = rdb
	d.closers = append(d.closers, rdb.Close)
	d.Store = pvpchan.NewRedisStore(rdb, pvpchan.RedisOptions{TTL: cfg.SessionTTL, Strict: cfg.SyncStrict})

	d.Archive, err = NewArchive(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closers = append(d.closers, d.Archive.Close)

	agent, closeAgent, err := NewAgent(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	if closeAgent != nil {
		d.closers = append(d.closers, closeAgent)
	}
	if agent != nil {
		d.Driver = proposal.NewDriver(agent, DriverConfig(cfg.Agent))
	}

	d.Manager, err = pvp.NewManager(pvp.Options{
		Store:          d.Store,
		Archive:        d.Archive,
		Driver:         d.Driver,
		PublishTimeout: cfg.SyncPublishTimeout,
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	obslog.L().Info("deps_ready",
		zap.Bool("strict_sync", cfg.SyncStrict),
		zap.String("agent", string(cfg.Agent.Kind)),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
	)
	return d, nil
}

// Close는 New가 연 자원을 역순으로 정리.
func (d *Deps) Close() error {
	if d.Manager != nil {
		d.Manager.Close()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// NewArchive picks Postgres when DATABASE_URL is set and memory otherwise.
func NewArchive(ctx context.Context, cfg *config.AppConfig) (archive.Repository, error) {
	if cfg.DatabaseURL == "" {
		return archive.NewMemoryRepository(), nil
	}
	repo, err := archive.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// NewAgent builds the configured agent. The returned closer may be nil.
func NewAgent(ctx context.Context, cfg *config.AppConfig) (proposal.Agent, func() error, error) {
	switch cfg.Agent.Kind {
	case config.AgentOpenRouter:
		return openrouter.New(openrouter.Config{
			URL:     cfg.OpenRouter.URL,
			APIKey:  cfg.OpenRouter.APIKey,
			Model:   cfg.OpenRouter.Model,
			Referer: cfg.OpenRouter.Referer,
			Title:   cfg.OpenRouter.Title,
		}, openrouter.WithTimeout(cfg.Agent.AttemptTimeout)), nil, nil
	case config.AgentArk:
		cm, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init ark model: %w", err)
		}
		return llm.New(cm), nil, nil
	case config.AgentStockfish:
		engine, err := corechess.NewEngine(corechess.Config{
			BinaryPath: cfg.Stockfish.Path,
			SkillLevel: cfg.Stockfish.Skill,
			MoveTime:   cfg.Stockfish.MoveTime,
			BookPath:   cfg.Stockfish.BookPath,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init engine: %w", err)
		}
		return engine, engine.Close, nil
	}
	return nil, nil, nil
}

func DriverConfig(a config.AgentConfig) proposal.Config {
	return proposal.Config{
		MaxAttempts:    a.MaxAttempts,
		AttemptTimeout: a.AttemptTimeout,
		RetryWait:      a.RetryWait,
		Temperatures:   append([]float32(nil), a.Temperatures...),
		MaxTokens:      a.MaxTokens,
	}
}
