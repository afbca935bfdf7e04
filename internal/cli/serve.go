package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/chessbuilder"
	"github.com/park285/cheese-duel/internal/config"
	"github.com/park285/cheese-duel/internal/httpapi"
	"github.com/park285/cheese-duel/internal/obslog"
)

type ServeOptions struct {
	*RootOptions
	Addr    string
	Origins []string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket bridge for a local UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	cmd.Flags().StringSliceVar(&opts.Origins, "origin", nil, "allowed websocket origin patterns")
	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	deps, err := chessbuilder.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	addr := cfg.HTTPAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	api := httpapi.New(httpapi.Options{Manager: deps.Manager, Archive: deps.Archive, OriginPatterns: opts.Origins})
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	obslog.L().Info("http_listening", zap.String("addr", addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
