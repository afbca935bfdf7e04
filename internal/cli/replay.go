package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/park285/cheese-duel/internal/archive"
	"github.com/park285/cheese-duel/internal/proposal"
	"github.com/park285/cheese-duel/internal/pvpchess"
)

type ReplayOptions struct {
	*RootOptions
	White string
	Black string
}

// ReplayResult is the json output of replay.
type ReplayResult struct {
	Position string   `json:"position"`
	Turn     string   `json:"turn"`
	Plies    int      `json:"plies"`
	SAN      []string `json:"san"`
	Result   string   `json:"result"`
	Method   string   `json:"method,omitempty"`
	ECO      string   `json:"eco,omitempty"`
	Opening  string   `json:"opening,omitempty"`
	PGN      string   `json:"pgn"`
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "replay MOVE...",
		Short: "Replay a move list and print the final position",
		Long: `Replay moves from the initial position through the session engine.

Moves are UCI pairs (e2e4, e7e8q) or "from:e2 to:e4" strings; several moves
may share one argument separated by spaces or commas. Pawns always promote
to a queen.

Examples:
  cheese-duel replay e2e4 e7e5 g1f3
  cheese-duel replay "f2f3, e7e5, g2g4, d8h4" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := Replay(args, opts.White, opts.Black)
			if err != nil {
				return err
			}
			return printReplay(cmd, opts.Format, res)
		},
	}
	cmd.Flags().StringVar(&opts.White, "white", "white", "white player id for the PGN header")
	cmd.Flags().StringVar(&opts.Black, "black", "black", "black player id for the PGN header")
	return cmd
}

// Replay plays moves through a local machine. It stops at the first move
// the rules reject.
func Replay(args []string, white, black string) (ReplayResult, error) {
	m := pvpchess.NewMachine(nil, pvpchess.Options{})
	defer m.Close()
	if _, err := m.Create("replay", white); err != nil {
		return ReplayResult{}, err
	}
	if _, err := m.AssignSecondPlayer(black); err != nil {
		return ReplayResult{}, err
	}

	for i, tok := range splitMoves(args) {
		p := proposal.Parse(tok)
		if p.Kind != proposal.Valid {
			return ReplayResult{}, fmt.Errorf("move %d %q: %w", i+1, tok, proposal.ErrMalformedProposal)
		}
		if p.UnderPromotes() {
			return ReplayResult{}, fmt.Errorf("move %d %q: %w", i+1, tok, proposal.ErrUnderPromotion)
		}
		if m.State() != pvpchess.StateActive {
			return ReplayResult{}, fmt.Errorf("move %d %q: game already over", i+1, tok)
		}
		if _, err := m.AttemptMove(p.From, p.To, m.SideToMove()); err != nil {
			return ReplayResult{}, fmt.Errorf("move %d %q: %w", i+1, tok, err)
		}
	}

	s := m.Session()
	v, err := m.Verdict()
	if err != nil {
		return ReplayResult{}, err
	}
	res := ReplayResult{Position: s.Position, Turn: string(s.CurrentTurn), Plies: len(s.MoveLog)}
	g := archive.FromSession(s, v, s.LastUpdated)
	res.SAN = g.MovesSAN
	res.ECO, res.Opening = g.ECO, g.Opening
	res.PGN = g.PGN
	switch {
	case v.Terminal:
		res.Result, res.Method = g.Result, g.Method
	default:
		res.Result = "in progress"
	}
	return res, nil
}

func splitMoves(args []string) []string {
	var out []string
	for _, a := range args {
		if strings.Contains(strings.ToLower(a), "from:") {
			out = append(out, strings.TrimSpace(a))
			continue
		}
		for _, f := range strings.FieldsFunc(a, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, f)
		}
	}
	return out
}

func printReplay(cmd *cobra.Command, format string, res ReplayResult) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "FEN:     %s\n", res.Position)
	fmt.Fprintf(w, "Plies:   %d (%s to move)\n", res.Plies, res.Turn)
	if res.Method != "" {
		fmt.Fprintf(w, "Result:  %s by %s\n", res.Result, res.Method)
	} else {
		fmt.Fprintf(w, "Result:  %s\n", res.Result)
	}
	if res.Opening != "" {
		fmt.Fprintf(w, "Opening: %s %s\n", res.ECO, res.Opening)
	}
	fmt.Fprintf(w, "\n%s\n", res.PGN)
	return nil
}
