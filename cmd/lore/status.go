package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hyperjump/lore/internal/cli"
	"github.com/hyperjump/lore/pkg/lore"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store and embedding status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				stats, err := e.Stats(ctx)
				if err != nil {
					return err
				}
				if a.output == cli.OutputJSON {
					return cli.WriteJSON(cmd.OutOrStdout(), map[string]any{
						"stats":  stats,
						"config": a.configPath,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Config:      %s\n", orDefault(a.configPath, "(defaults)"))
				fmt.Fprintf(out, "Store:       %s %s\n", a.cfg.Storage.Backend, a.cfg.Storage.DatabasePath)
				fmt.Fprintf(out, "Lessons:     %d\n", stats.Lessons)
				fmt.Fprintf(out, "Embedding:   %s (%d dimensions)\n", a.cfg.Embedding.Provider, stats.Dimensions)
				fmt.Fprintf(out, "Redaction:   %s\n", strconv.FormatBool(stats.Redaction))
				fmt.Fprintf(out, "Default k:   %d\n", stats.DefaultK)
				fmt.Fprintf(out, "Disk usage:  %s\n", humanize.Bytes(uint64(stats.DiskBytes)))
				return nil
			})
		},
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
