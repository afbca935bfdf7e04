package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/cheese-duel/internal/chessbuilder"
	"github.com/park285/cheese-duel/internal/config"
	"github.com/park285/cheese-duel/internal/pvpchan"
)

// CheckResult reports one dependency probe.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok | fail | skip
	Detail string `json:"detail,omitempty"`
}

func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify Redis, Postgres and agent configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			results := RunChecks(ctx)
			failed := 0
			for _, r := range results {
				if r.Status == "fail" {
					failed++
				}
			}
			if rootOpts.Format == "json" {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Detail != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "%-4s %-8s %s\n", r.Status, r.Name, r.Detail)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "%-4s %s\n", r.Status, r.Name)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func RunChecks(ctx context.Context) []CheckResult {
	cfg, err := config.Load()
	if err != nil {
		return []CheckResult{{Name: "config", Status: "fail", Detail: err.Error()}}
	}
	results := []CheckResult{{Name: "config", Status: "ok"}}

	if cfg.RedisURL == "" {
		results = append(results, CheckResult{Name: "redis", Status: "fail", Detail: "REDIS_URL not set"})
	} else if rdb, err := pvpchan.NewRedisClient(ctx, cfg.RedisURL); err != nil {
		results = append(results, CheckResult{Name: "redis", Status: "fail", Detail: err.Error()})
	} else {
		rdb.Close()
		results = append(results, CheckResult{Name: "redis", Status: "ok"})
	}

	if cfg.DatabaseURL == "" {
		results = append(results, CheckResult{Name: "postgres", Status: "skip", Detail: "DATABASE_URL not set, games are archived in memory"})
	} else if repo, err := chessbuilder.NewArchive(ctx, cfg); err != nil {
		results = append(results, CheckResult{Name: "postgres", Status: "fail", Detail: err.Error()})
	} else {
		repo.Close()
		results = append(results, CheckResult{Name: "postgres", Status: "ok"})
	}

	agent, closeAgent, err := chessbuilder.NewAgent(ctx, cfg)
	switch {
	case err != nil:
		results = append(results, CheckResult{Name: "agent", Status: "fail", Detail: err.Error()})
	case agent == nil:
		results = append(results, CheckResult{Name: "agent", Status: "skip", Detail: "AGENT_KIND=none"})
	default:
		results = append(results, CheckResult{Name: "agent", Status: "ok", Detail: string(cfg.Agent.Kind)})
	}
	if closeAgent != nil {
		_ = closeAgent()
	}
	return results
}
