package chessbuilder

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/cheese-duel/internal/archive"
	"github.com/park285/cheese-duel/internal/config"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return &config.AppConfig{
		RedisURL:           "redis://" + mr.Addr() + "/0",
		SessionTTL:         time.Hour,
		SyncPublishTimeout: time.Second,
		Agent: config.AgentConfig{
			Kind:           config.AgentNone,
			MaxAttempts:    3,
			AttemptTimeout: time.Second,
			Temperatures:   []float32{0.1},
			MaxTokens:      50,
		},
	}
}

func TestNewWithoutAgent(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()
	if d.Driver != nil {
		t.Fatalf("no driver expected without an agent")
	}
	if _, ok := d.Archive.(*archive.MemoryRepository); !ok {
		t.Fatalf("expected memory archive, got %T", d.Archive)
	}

	s, err := d.Manager.Create(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	snap, err := d.Store.Load(context.Background(), s.ID)
	if err != nil || snap == nil || snap.Players.White != "alice" {
		t.Fatalf("session not in redis: %+v %v", snap, err)
	}
}

func TestNewWithOpenRouterAgent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.Kind = config.AgentOpenRouter
	cfg.OpenRouter = config.OpenRouterConfig{APIKey: "sk-test", Model: "m"}
	d, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()
	if d.Driver == nil || d.Driver.Config().MaxAttempts != 3 {
		t.Fatalf("expected a driver with 3 attempts")
	}
}

func TestNewRequiresRedis(t *testing.T) {
	if _, err := New(context.Background(), &config.AppConfig{}); err == nil {
		t.Fatalf("expected REDIS_URL error")
	}
}

func TestNewAgentArkNeedsCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.Kind = config.AgentArk
	if _, _, err := NewAgent(context.Background(), cfg); err == nil {
		t.Fatalf("expected ark credential error")
	}
}
