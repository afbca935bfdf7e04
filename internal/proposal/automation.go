package proposal

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/internal/pvpchess"
	"github.com/park285/cheese-duel/internal/rules"
)

// Result reports the end of one automated turn.
type Result struct {
	Color   rules.Color
	Outcome Outcome
	Err     error
}

// Automation plays color on g whenever it is that color's turn. It runs at
// most one Driver.Run at a time and disables itself on exhaustion.
type Automation struct {
	driver *Driver
	game   Game
	color  rules.Color
	notify func(Result)

	mu      sync.Mutex
	enabled bool
	gen     uint64
	running bool
	cancel  context.CancelFunc
	lastErr error
	wg      sync.WaitGroup
}

func NewAutomation(driver *Driver, g Game, color rules.Color, notify func(Result)) *Automation {
	return &Automation{driver: driver, game: g, color: color, notify: notify}
}

func (a *Automation) Color() rules.Color { return a.color }

func (a *Automation) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// LastError returns the error that disabled automation, if any.
func (a *Automation) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Enable turns automation on with a fresh attempt budget and starts a turn
// if one is due.
func (a *Automation) Enable() {
	a.mu.Lock()
	a.enabled = true
	a.lastErr = nil
	a.mu.Unlock()
	a.Kick()
}

// Disable stops automation. An in-flight proposal is abandoned and its
// answer is dropped.
func (a *Automation) Disable() {
	a.mu.Lock()
	a.disableLocked(nil)
	a.mu.Unlock()
}

func (a *Automation) disableLocked(reason error) {
	a.enabled = false
	a.lastErr = reason
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Kick starts a turn when automation is on, nothing is running and the
// automated color is to move.
func (a *Automation) Kick() {
	s := a.game.Session()
	if s.Status != pvpchess.StatusActive {
		if s.Status == pvpchess.StatusEnded {
			a.Disable()
		}
		return
	}
	side, err := a.game.Rules().SideToMove(s.Position)
	if err != nil || side != a.color {
		return
	}

	a.mu.Lock()
	if !a.enabled || a.running {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.running = true
	a.cancel = cancel
	gen := a.gen
	a.wg.Add(1)
	a.mu.Unlock()

	go a.turn(ctx, cancel, gen)
}

// Wait blocks until the in-flight turn, if any, has finished.
func (a *Automation) Wait() { a.wg.Wait() }

func (a *Automation) turn(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer a.wg.Done()
	defer cancel()

	out, err := a.driver.Run(ctx, &guardedGame{Game: a.game, a: a, gen: gen}, a.color)

	a.mu.Lock()
	a.running = false
	stale := gen != a.gen
	if !stale {
		a.cancel = nil
	}
	if !stale && errors.Is(err, ErrProposalExhausted) {
		a.disableLocked(err)
	}
	a.mu.Unlock()

	if stale || errors.Is(err, context.Canceled) {
		obslog.L().Debug("automation_turn_abandoned", zap.String("color", string(a.color)))
		return
	}
	if a.notify != nil {
		a.notify(Result{Color: a.color, Outcome: out, Err: err})
	}
}

// guardedGame refuses to apply a move once its turn has been superseded.
// A proposal that passed the check before Disable is not stale.
type guardedGame struct {
	Game
	a   *Automation
	gen uint64
}

func (g *guardedGame) AttemptMove(from, to string, requester rules.Color) (pvpchess.Move, error) {
	g.a.mu.Lock()
	live := g.gen == g.a.gen && g.a.enabled
	g.a.mu.Unlock()
	if !live {
		return pvpchess.Move{}, context.Canceled
	}
	// the machine emits events synchronously, so no automation lock is held here
	return g.Game.AttemptMove(from, to, requester)
}
