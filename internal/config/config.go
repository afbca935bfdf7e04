package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// AgentKind selects the backend of the automated player.
type AgentKind string

const (
	AgentNone       AgentKind = "none"
	AgentOpenRouter AgentKind = "openrouter"
	AgentArk        AgentKind = "ark"
	AgentStockfish  AgentKind = "stockfish"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"

type AppConfig struct {
	HTTPAddr string

	RedisURL    string
	DatabaseURL string

	SessionTTL         time.Duration
	SyncPublishTimeout time.Duration
	SyncStrict         bool

	Agent      AgentConfig
	OpenRouter OpenRouterConfig
	Ark        ArkConfig
	Stockfish  StockfishConfig
}

type AgentConfig struct {
	Kind           AgentKind
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryWait      time.Duration
	Temperatures   []float32
	MaxTokens      int
}

type OpenRouterConfig struct {
	APIKey  string
	URL     string
	Model   string
	Referer string
	Title   string
}

type ArkConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Region  string
}

type StockfishConfig struct {
	Path     string
	Skill    int
	MoveTime time.Duration
	BookPath string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:           ":8080",
		SessionTTL:         24 * time.Hour,
		SyncPublishTimeout: 5 * time.Second,
		Agent: AgentConfig{
			Kind:           AgentNone,
			MaxAttempts:    3,
			AttemptTimeout: 10 * time.Second,
			RetryWait:      time.Second,
			Temperatures:   []float32{0.1, 0.3, 0.7},
			MaxTokens:      50,
		},
		OpenRouter: OpenRouterConfig{
			URL:   defaultOpenRouterURL,
			Model: "deepseek/deepseek-chat:free",
		},
		Stockfish: StockfishConfig{
			Skill:    10,
			MoveTime: 300 * time.Millisecond,
		},
	}

	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.SyncPublishTimeout, err = durationEnv("SYNC_PUBLISH_TIMEOUT", cfg.SyncPublishTimeout); err != nil {
		return nil, err
	}
	if cfg.SyncStrict, err = boolEnv("SYNC_STRICT", false); err != nil {
		return nil, err
	}

	// 자동 플레이어
	if v := env("AGENT_KIND"); v != "" {
		cfg.Agent.Kind = AgentKind(strings.ToLower(v))
	}
	switch cfg.Agent.Kind {
	case AgentNone, AgentOpenRouter, AgentArk, AgentStockfish:
	default:
		return nil, fmt.Errorf("invalid AGENT_KIND %q (none|openrouter|ark|stockfish)", cfg.Agent.Kind)
	}
	if cfg.Agent.MaxAttempts, err = positiveIntEnv("AGENT_MAX_ATTEMPTS", cfg.Agent.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Agent.AttemptTimeout, err = durationEnv("AGENT_ATTEMPT_TIMEOUT", cfg.Agent.AttemptTimeout); err != nil {
		return nil, err
	}
	if cfg.Agent.RetryWait, err = durationEnv("AGENT_RETRY_WAIT", cfg.Agent.RetryWait); err != nil {
		return nil, err
	}
	if v := env("AGENT_TEMPERATURES"); v != "" {
		if cfg.Agent.Temperatures, err = parseTemperatures(v); err != nil {
			return nil, err
		}
	}
	if cfg.Agent.MaxTokens, err = positiveIntEnv("AGENT_MAX_TOKENS", cfg.Agent.MaxTokens); err != nil {
		return nil, err
	}

	cfg.OpenRouter.APIKey = env("OPENROUTER_API_KEY")
	if v := env("OPENROUTER_URL"); v != "" {
		cfg.OpenRouter.URL = v
	}
	if v := env("OPENROUTER_MODEL"); v != "" {
		cfg.OpenRouter.Model = v
	}
	cfg.OpenRouter.Referer = env("OPENROUTER_REFERER")
	cfg.OpenRouter.Title = env("OPENROUTER_TITLE")

	cfg.Ark = ArkConfig{
		APIKey:  env("ARK_API_KEY"),
		Model:   env("ARK_MODEL"),
		BaseURL: env("ARK_BASE_URL"),
		Region:  env("ARK_REGION"),
	}

	cfg.Stockfish.Path = env("STOCKFISH_PATH")
	if cfg.Stockfish.Skill, err = intEnv("STOCKFISH_SKILL", cfg.Stockfish.Skill); err != nil {
		return nil, err
	}
	if cfg.Stockfish.Skill < 0 || cfg.Stockfish.Skill > 20 {
		return nil, fmt.Errorf("STOCKFISH_SKILL must be within 0..20, got %d", cfg.Stockfish.Skill)
	}
	ms, err := positiveIntEnv("STOCKFISH_MOVETIME_MS", int(cfg.Stockfish.MoveTime/time.Millisecond))
	if err != nil {
		return nil, err
	}
	cfg.Stockfish.MoveTime = time.Duration(ms) * time.Millisecond
	cfg.Stockfish.BookPath = env("CHESS_POLYGLOT_BOOK_PATH")

	if err := cfg.validateAgent(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireRedis는 공유 저장소를 쓰는 명령에서 확인.
func (c *AppConfig) RequireRedis() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	return nil
}

func (c *AppConfig) validateAgent() error {
	switch c.Agent.Kind {
	case AgentOpenRouter:
		if c.OpenRouter.APIKey == "" {
			return errors.New("OPENROUTER_API_KEY is required for AGENT_KIND=openrouter")
		}
	case AgentArk:
		if !c.Ark.Enabled() {
			return errors.New("ARK_API_KEY and ARK_MODEL are required for AGENT_KIND=ark")
		}
	case AgentStockfish:
		if c.Stockfish.Path == "" {
			return errors.New("STOCKFISH_PATH is required for AGENT_KIND=stockfish")
		}
	}
	return nil
}

func (c ArkConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// NewChatModel builds the Ark chat model behind the ark agent.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing")
	}
	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: c.BaseURL,
		Region:  c.Region,
		APIKey:  c.APIKey,
		Model:   c.Model,
	})
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration like 5s", key, v)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func intEnv(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	n, err := intEnv(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func parseTemperatures(v string) ([]float32, error) {
	var out []float32
	for _, p := range strings.Split(v, ",") {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 32)
		if err != nil || f < 0 || f > 2 {
			return nil, fmt.Errorf("invalid AGENT_TEMPERATURES entry %q", s)
		}
		out = append(out, float32(f))
	}
	if len(out) == 0 {
		return nil, errors.New("AGENT_TEMPERATURES is empty")
	}
	return out, nil
}
