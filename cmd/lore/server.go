package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/metrics"
	"github.com/hyperjump/lore/internal/ratelimit"
	"github.com/hyperjump/lore/internal/server"
	"github.com/hyperjump/lore/internal/watcher"
	"github.com/hyperjump/lore/pkg/lore"
)

func newServerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServer(cmd.Context())
		},
	}
}

func (a *app) runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	engine, err := buildEngine(ctx, a.cfg, a.logger, lore.WithObserver(m))
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := []server.Option{server.WithMetrics(m)}
	if a.cfg.RateLimit.Enabled {
		limiter, err := ratelimit.FromConfig(a.cfg.RateLimit, a.logger)
		if err != nil {
			return err
		}
		defer limiter.Close()
		opts = append(opts, server.WithRateLimiter(limiter))
		a.logger.Info("rate limiting enabled",
			zap.String("backend", a.cfg.RateLimit.Backend),
			zap.Int("max_requests", a.cfg.RateLimit.MaxRequests),
			zap.Int("window_seconds", a.cfg.RateLimit.WindowSeconds))
	}

	inbox := watcher.NewInbox(engine, a.cfg.Watch, a.logger)
	if err := inbox.Start(ctx); err != nil {
		return err
	}
	defer inbox.Stop()
	opts = append(opts, server.WithInbox(inbox, a.configPath))

	srv := server.NewServer(engine, a.cfg, a.logger, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
