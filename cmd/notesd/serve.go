package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/epic-notes/internal/config"
	"github.com/kuitang/epic-notes/internal/obs"
	"github.com/kuitang/epic-notes/internal/ratelimit"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(flags *config.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			cfg.PrintStartupSummary(cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, nil)
		},
	}
	cmd.Flags().StringVar(&flags.ListenAddr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	return cmd
}

// serve runs the server until ctx is cancelled, then drains connections.
// ready, when non-nil, receives the bound address once listening.
func serve(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	log := obs.Pkg("main")

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	limiter := ratelimit.NewRateLimiter(cfg.RateLimiterConfig())
	defer limiter.Stop()

	handler, err := newHandler(a.notes, limiter, cfg.BaseURL)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info("server_listening", "addr", ln.Addr().String(), "blob_backend", cfg.BlobBackend)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server_stopped")
	return nil
}
