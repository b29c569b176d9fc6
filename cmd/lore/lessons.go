package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/lore/internal/cli"
	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/lore"
	"github.com/hyperjump/lore/pkg/models"
)

// withEngine opens the engine for the duration of fn.
func (a *app) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *lore.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := buildEngine(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

func newPublishCmd(a *app) *cobra.Command {
	var (
		problem, resolution, lctx string
		tags                      []string
		confidence                float64
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Record a lesson",
		Example: `  lore publish --problem "Stripe returns 429" --resolution "Back off exponentially" --tag stripe
  lore publish -p "OOM in worker" -r "Raise memory limit" --confidence 0.8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := models.LessonInput{Problem: problem, Resolution: resolution, Context: lctx, Tags: tags}
			if cmd.Flags().Changed("confidence") {
				in.Confidence = &confidence
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				id, err := e.Publish(ctx, in)
				if err != nil {
					return err
				}
				return cli.WriteMessage(cmd.OutOrStdout(), a.output, id, map[string]any{"id": id})
			})
		},
	}
	cmd.Flags().StringVarP(&problem, "problem", "p", "", "what went wrong")
	cmd.Flags().StringVarP(&resolution, "resolution", "r", "", "how it was fixed")
	cmd.Flags().StringVar(&lctx, "context", "", "optional background")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "tag (repeatable)")
	cmd.Flags().Float64Var(&confidence, "confidence", models.DefaultConfidence, "confidence in [0,1]")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		k             int
		tags          []string
		minConfidence float64
		minScore      float64
		prompt        bool
		maxTokens     int
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Find lessons similar to text",
		Long:  "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.",
		Example: `  lore query how to handle API rate limits
  lore query --tag stripe -k 3 "payment retries"
  lore query --prompt timeouts on large prompts`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := buildQueryText(args)
			if text == "" {
				return loreerr.New(loreerr.CodeValidationInvalidInput, "query text is required")
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				results, err := e.QueryWith(ctx, models.LessonQuery{
					Text:          text,
					K:             k,
					Tags:          tags,
					MinConfidence: minConfidence,
					MinScore:      minScore,
				})
				if err != nil {
					return err
				}
				if prompt {
					opts := lore.DefaultPromptOptions()
					if a.cfg.Lore.PromptMaxTokens > 0 {
						opts.MaxTokens = a.cfg.Lore.PromptMaxTokens
					}
					if maxTokens > 0 {
						opts.MaxTokens = maxTokens
					}
					text := e.AsPromptWith(results, opts)
					return cli.WriteMessage(cmd.OutOrStdout(), a.output, text, map[string]any{"prompt": text})
				}
				return cli.WriteResults(cmd.OutOrStdout(), results, a.output)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "maximum results (0 = configured default)")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "require tag (repeatable)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "skip lessons below this confidence")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop results below this similarity")
	cmd.Flags().BoolVar(&prompt, "prompt", false, "print results formatted for a system prompt")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "prompt budget in tokens (0 = configured default)")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Keyword search over lesson text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				results, err := e.KeywordSearch(ctx, buildQueryText(args), k)
				if err != nil {
					return err
				}
				return cli.WriteResults(cmd.OutOrStdout(), results, a.output)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "maximum results (0 = configured default)")
	return cmd
}

// buildQueryText joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				l, err := e.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if l == nil {
					return loreerr.New(loreerr.CodeServerEntityNotFound, fmt.Sprintf("lesson not found: %s", args[0]))
				}
				return cli.WriteLesson(cmd.OutOrStdout(), l, a.output)
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all lessons in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				lessons, err := e.List(ctx)
				if err != nil {
					return err
				}
				return cli.WriteLessons(cmd.OutOrStdout(), lessons, a.output)
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lore.Engine) error {
				deleted, err := e.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				msg := "Deleted " + args[0]
				if !deleted {
					msg = "No lesson with id " + args[0]
				}
				return cli.WriteMessage(cmd.OutOrStdout(), a.output, msg, map[string]any{"id": args[0], "deleted": deleted})
			})
		},
	}
}
