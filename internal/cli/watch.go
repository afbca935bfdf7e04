package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/cheese-duel/internal/pvp"
	"github.com/park285/cheese-duel/internal/wsclient"
	"github.com/park285/cheese-duel/pkg/chessdto"
)

type WatchOptions struct {
	*RootOptions
	Server    string
	Reconnect int
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "watch SESSION_ID",
		Short: "Follow the event stream of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Server, "server", "http://localhost:8080", "base URL of a running serve command")
	cmd.Flags().IntVar(&opts.Reconnect, "reconnect", 5, "reconnect attempts after the stream drops")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, sessionID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	ended := make(chan struct{})
	failed := make(chan struct{})
	events := make(chan chessdto.SessionEvent, 32)

	c := wsclient.New(wsclient.StreamURL(opts.Server, sessionID), opts.Reconnect, time.Second)
	quit := make(chan struct{})
	c.OnEvent(func(ev chessdto.SessionEvent) {
		select {
		case events <- ev:
		case <-quit:
		}
	})
	var failOnce sync.Once
	c.OnStateChange(func(s wsclient.State) {
		if s == wsclient.StateFailed {
			failOnce.Do(func() { close(failed) })
		}
	})
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(cctx)
	}()
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", opts.Server, err)
	}
	defer close(quit)

	go func() {
		for {
			select {
			case <-quit:
				return
			case ev := <-events:
				printEvent(out, opts.Format, ev)
				if ev.Kind == string(pvp.KindSessionEnded) {
					close(ended)
					return
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-ended:
		return nil
	case <-failed:
		return fmt.Errorf("lost the event stream after %d reconnect attempts", opts.Reconnect)
	}
}

func printEvent(w io.Writer, format string, ev chessdto.SessionEvent) {
	if format == "json" {
		_ = json.NewEncoder(w).Encode(ev)
		return
	}
	s := ev.Session
	line := fmt.Sprintf("%-15s status=%s turn=%s plies=%d", ev.Kind, s.Status, s.CurrentTurn, len(s.MoveLog))
	if s.LastMove != nil {
		line += fmt.Sprintf(" last=%s%s(%s)", s.LastMove.From, s.LastMove.To, s.LastMove.Notation)
	}
	if ev.Color != "" {
		line += " color=" + ev.Color
	}
	if ev.Error != nil {
		line += fmt.Sprintf(" error=%s: %s", ev.Error.Code, ev.Error.Message)
	}
	fmt.Fprintln(w, line)
}
