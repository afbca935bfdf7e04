package proposal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

// Game is the slice of the session machine the driver needs.
type Game interface {
	Session() pvpchess.Session
	Rules() rules.Engine
	AttemptMove(from, to string, requester rules.Color) (pvpchess.Move, error)
}

// Config bounds one Run.
type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryWait      time.Duration
	// Temperatures is indexed by attempt; the last value repeats.
	Temperatures []float32
	MaxTokens    int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		AttemptTimeout: 10 * time.Second,
		RetryWait:      time.Second,
		Temperatures:   []float32{0.1, 0.3, 0.7},
		MaxTokens:      50,
	}
}

// Outcome summarises a Run.
type Outcome struct {
	Move     pvpchess.Move
	Attempts int
	Rejected []Rejection
}

// Driver asks an Agent for moves until one is accepted or attempts run out.
type Driver struct {
	agent Agent
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDriver(agent Agent, cfg Config) *Driver {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.RetryWait < 0 {
		cfg.RetryWait = 0
	}
	if len(cfg.Temperatures) == 0 {
		cfg.Temperatures = def.Temperatures
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Driver{agent: agent, cfg: cfg, sleep: sleepCtx}
}

func (d *Driver) Config() Config { return d.cfg }

// Run plays one move for color. Every attempt gets its own timeout; a slow,
// failing, malformed or illegal answer costs one attempt. Cancelling ctx
// abandons the in-flight request and its answer is never applied.
func (d *Driver) Run(ctx context.Context, g Game, color rules.Color) (Outcome, error) {
	var out Outcome
	var last *Rejection
	wait := d.cfg.RetryWait

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		s := g.Session()
		lg := obslog.Session(s.ID).With(zap.String("color", string(color)), zap.Int("attempt", attempt))
		if s.Status == pvpchess.StatusEnded || g.Rules().IsTerminal(s.Position) {
			return out, ErrSessionTerminal
		}
		side, err := g.Rules().SideToMove(s.Position)
		if err != nil {
			return out, err
		}
		if side != color {
			return out, ErrNotOurTurn
		}
		legal, err := g.Rules().LegalMoves(s.Position)
		if err != nil {
			return out, err
		}

		req := Request{
			SessionID:        s.ID,
			Position:         s.Position,
			MoveHistory:      history(s.MoveLog),
			LegalMoves:       uciList(legal),
			SideToMove:       color,
			PreviousRejected: last,
			Temperature:      d.temperature(attempt),
			MaxTokens:        d.cfg.MaxTokens,
			Attempt:          attempt,
		}
		out.Attempts = attempt
		lg.Debug("proposal_attempt", zap.Float32("temperature", req.Temperature))

		raw, err := d.ask(ctx, req)
		if cerr := ctx.Err(); cerr != nil {
			lg.Debug("proposal_dropped", zap.Error(cerr))
			return out, cerr
		}

		var reason error
		p := Proposal{Raw: raw}
		switch {
		case err != nil:
			reason = err
		default:
			p = Parse(raw)
			reason = validate(p, legal)
		}
		if reason == nil {
			mv, err := g.AttemptMove(p.From, p.To, color)
			if err == nil {
				out.Move = mv
				lg.Info("proposal_accepted", zap.String("from", p.From), zap.String("to", p.To))
				return out, nil
			}
			if errors.Is(err, context.Canceled) {
				return out, err
			}
			reason = err
		}

		last = &Rejection{Proposal: rejectedText(p), Reason: reason.Error(), Attempt: attempt}
		out.Rejected = append(out.Rejected, *last)
		lg.Warn("proposal_rejected", zap.String("proposal", last.Proposal), zap.Error(reason))

		if attempt == d.cfg.MaxAttempts {
			break
		}
		pause := wait
		if errors.Is(reason, ErrAgentUnavailable) {
			pause = 2 * wait
		}
		if err := d.sleep(ctx, pause); err != nil {
			return out, err
		}
	}

	obslog.Session(g.Session().ID).Warn("proposal_exhausted",
		zap.String("color", string(color)),
		zap.Int("attempt", out.Attempts),
	)
	return out, fmt.Errorf("%w after %d attempts", ErrProposalExhausted, out.Attempts)
}

func (d *Driver) ask(ctx context.Context, req Request) (string, error) {
	actx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	type answer struct {
		raw string
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		raw, err := d.agent.Propose(actx, req)
		ch <- answer{raw, err}
	}()
	// 에이전트가 ctx를 무시해도 시도 시간은 넘기지 않는다
	select {
	case a := <-ch:
		return a.raw, a.err
	case <-actx.Done():
		return "", fmt.Errorf("agent attempt timed out: %w", actx.Err())
	}
}

func (d *Driver) temperature(attempt int) float32 {
	i := attempt - 1
	if i >= len(d.cfg.Temperatures) {
		i = len(d.cfg.Temperatures) - 1
	}
	return d.cfg.Temperatures[i]
}

func validate(p Proposal, legal []rules.SquarePair) error {
	if p.Kind != Valid {
		return ErrMalformedProposal
	}
	if p.UnderPromotes() {
		return fmt.Errorf("%w: %s", ErrUnderPromotion, p)
	}
	for _, m := range legal {
		if m.From == p.From && m.To == p.To {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not legal here", rules.ErrIllegalMove, p.Pair())
}

func rejectedText(p Proposal) string {
	if p.Kind == Valid {
		return p.String()
	}
	return truncate(p.Raw, 80)
}

func history(moves []pvpchess.Move) []string {
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		if m.Notation != "" {
			out = append(out, m.Notation)
			continue
		}
		out = append(out, m.From+m.To)
	}
	return out
}

func uciList(moves []rules.SquarePair) []string {
	out := make([]string, 0, len(moves))
	seen := make(map[string]struct{}, len(moves))
	for _, m := range moves {
		s := m.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
