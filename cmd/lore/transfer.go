package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/cli"
	"github.com/hyperjump/lore/internal/transfer"
	"github.com/hyperjump/lore/pkg/lore"
)

func newExportCmd(a *app) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every lesson to a JSON or Excel file",
		Example: `  lore export > lessons.json
  lore export --format xlsx -f lessons.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := transfer.ParseFormat(format)
			if err != nil {
				return err
			}
			if out != "" && !cmd.Flags().Changed("format") {
				if byExt, err := transfer.FormatFromPath(out); err == nil {
					f = byExt
				}
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				lessons, err := e.Export(ctx)
				if err != nil {
					return err
				}
				if out == "" {
					return transfer.Encode(cmd.OutOrStdout(), f, lessons)
				}
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := transfer.Encode(file, f, lessons); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				a.logger.Info("exported lessons", zap.String("path", out), zap.Int("count", len(lessons)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or xlsx")
	cmd.Flags().StringVarP(&out, "file", "f", "", "write to file instead of stdout")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import lessons from JSON or Excel exports",
		Long:  "Lessons whose id already exists are skipped. Imported text is redacted when redaction is on.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				total, read := 0, 0
				for _, path := range args {
					lessons, err := transfer.DecodeFile(path)
					if err != nil {
						return err
					}
					n, err := e.Import(ctx, lessons)
					if err != nil {
						return err
					}
					total += n
					read += len(lessons)
				}
				msg := pluralize(total, "lesson") + " imported"
				if skipped := read - total; skipped > 0 {
					msg += ", " + pluralize(skipped, "existing lesson") + " skipped"
				}
				return cli.WriteMessage(cmd.OutOrStdout(), a.output, msg, map[string]any{"imported": total, "skipped": read - total})
			})
		},
	}
}
