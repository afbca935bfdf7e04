package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/park285/cheese-duel/internal/proposal"
)

type fakeModel struct {
	reply string
	err   error
	input []*schema.Message
	opts  *model.Options
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	f.opts = model.GetCommonOptions(&model.Options{}, opts...)
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestProposePassesOptions(t *testing.T) {
	fm := &fakeModel{reply: "  from:g8 to:f6\n"}
	raw, err := New(fm).Propose(context.Background(), proposal.Request{
		Position:    "fen",
		SideToMove:  "black",
		LegalMoves:  []string{"g8f6"},
		Temperature: 0.7,
		MaxTokens:   50,
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if raw != "from:g8 to:f6" {
		t.Fatalf("unexpected answer %q", raw)
	}
	if len(fm.input) != 2 || fm.input[0].Role != schema.System || fm.input[1].Role != schema.User {
		t.Fatalf("unexpected messages: %+v", fm.input)
	}
	if !strings.Contains(fm.input[1].Content, "Legal moves: g8f6") {
		t.Fatalf("prompt missing legal moves: %s", fm.input[1].Content)
	}
	if fm.opts.Temperature == nil || *fm.opts.Temperature != 0.7 {
		t.Fatalf("temperature not forwarded")
	}
	if fm.opts.MaxTokens == nil || *fm.opts.MaxTokens != 50 {
		t.Fatalf("max tokens not forwarded")
	}
}

func TestProposeWrapsModelError(t *testing.T) {
	boom := errors.New("quota")
	_, err := New(&fakeModel{err: boom}).Propose(context.Background(), proposal.Request{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}
