package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/cli"
	"github.com/hyperjump/lore/internal/watcher"
	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/lore"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]...",
		Short: "Import lesson files dropped into inbox directories",
		Long: "Watches the given directories (or watch.directories from the config) and imports\n" +
			".json and .xlsx exports as they appear. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			watchCfg := a.cfg.Watch
			if len(args) > 0 {
				watchCfg.Directories = args
			}
			if len(watchCfg.Directories) == 0 {
				return loreerr.New(loreerr.CodeValidationInvalidInput, "no directories to watch")
			}
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.withEngine(cmd, func(_ context.Context, e *lore.Engine) error {
				inbox := watcher.NewInbox(e, watchCfg, a.logger)
				if err := inbox.Start(ctx); err != nil {
					return err
				}
				a.logger.Info("watching", zap.Strings("directories", inbox.Directories()))
				<-ctx.Done()
				inbox.Stop()
				stats := inbox.Stats()
				return cli.WriteMessage(cmd.OutOrStdout(), a.output,
					pluralize(stats.Lessons, "lesson")+" imported from "+pluralize(stats.Files, "file"),
					map[string]any{"stats": stats})
			})
		},
	}
}
