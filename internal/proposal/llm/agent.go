// Package llm adapts an eino chat model to a move-proposal agent.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/park285/cheese-duel/internal/proposal"
)

type Agent struct {
	chatModel model.BaseChatModel
}

func New(chatModel model.BaseChatModel) *Agent {
	return &Agent{chatModel: chatModel}
}

// Propose implements proposal.Agent.
func (a *Agent) Propose(ctx context.Context, req proposal.Request) (string, error) {
	messages := []*schema.Message{
		{
			Role:    schema.System,
			Content: proposal.SystemPrompt,
		},
		{
			Role:    schema.User,
			Content: proposal.UserPrompt(req),
		},
	}

	opts := []model.Option{model.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	resp, err := a.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("model generation failed: %w", err)
	}
	if resp == nil {
		return "", errors.New("model returned no message")
	}
	return strings.TrimSpace(resp.Content), nil
}
