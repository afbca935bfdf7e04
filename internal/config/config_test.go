package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AGENT_KIND", "")
	t.Setenv("REDIS_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.SessionTTL != 24*time.Hour || cfg.SyncPublishTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Agent.Kind != AgentNone || cfg.Agent.MaxAttempts != 3 || cfg.Agent.MaxTokens != 50 {
		t.Fatalf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if len(cfg.Agent.Temperatures) != 3 || cfg.Agent.Temperatures[2] != 0.7 {
		t.Fatalf("unexpected temperatures: %v", cfg.Agent.Temperatures)
	}
	if cfg.OpenRouter.URL != defaultOpenRouterURL || cfg.Stockfish.MoveTime != 300*time.Millisecond {
		t.Fatalf("unexpected backend defaults: %+v %+v", cfg.OpenRouter, cfg.Stockfish)
	}
	if err := cfg.RequireRedis(); err == nil {
		t.Fatalf("expected REDIS_URL to be required")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", " redis://localhost:6379/1 ")
	t.Setenv("SYNC_STRICT", "true")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("AGENT_KIND", "OpenRouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("AGENT_TEMPERATURES", "0.2, 0.9")
	t.Setenv("AGENT_RETRY_WAIT", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisURL != "redis://localhost:6379/1" || !cfg.SyncStrict || cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("unexpected sync config: %+v", cfg)
	}
	if cfg.Agent.Kind != AgentOpenRouter || cfg.Agent.RetryWait != 250*time.Millisecond {
		t.Fatalf("unexpected agent config: %+v", cfg.Agent)
	}
	if len(cfg.Agent.Temperatures) != 2 || cfg.Agent.Temperatures[1] != 0.9 {
		t.Fatalf("unexpected temperatures: %v", cfg.Agent.Temperatures)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"SESSION_TTL", "soon", "SESSION_TTL"},
		{"SYNC_STRICT", "maybe", "SYNC_STRICT"},
		{"AGENT_KIND", "oracle", "AGENT_KIND"},
		{"AGENT_MAX_ATTEMPTS", "0", "AGENT_MAX_ATTEMPTS"},
		{"AGENT_TEMPERATURES", "hot", "AGENT_TEMPERATURES"},
		{"STOCKFISH_SKILL", "25", "STOCKFISH_SKILL"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRequiresAgentCredentials(t *testing.T) {
	for _, kind := range []string{"openrouter", "ark", "stockfish"} {
		t.Run(kind, func(t *testing.T) {
			t.Setenv("AGENT_KIND", kind)
			t.Setenv("OPENROUTER_API_KEY", "")
			t.Setenv("ARK_API_KEY", "")
			t.Setenv("STOCKFISH_PATH", "")
			if _, err := Load(); err == nil {
				t.Fatalf("expected missing credential error")
			}
		})
	}
}
