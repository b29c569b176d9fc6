package lore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/lore/pkg/models"
)

const (
	// DefaultPromptTokens is the prompt budget when PromptOptions.MaxTokens <= 0.
	DefaultPromptTokens = 1000
	// charsPerToken approximates tokens from characters.
	charsPerToken = 4

	promptHeader = "## Relevant Lessons\n"
)

// PromptOptions controls AsPromptWith.
type PromptOptions struct {
	// MaxTokens is the approximate budget; a token counts as four characters.
	MaxTokens int
	// IncludeScore adds a "**Score:**" line to each block.
	IncludeScore bool
	// DedupeProblems keeps only the best-scoring result per identical problem text.
	DedupeProblems bool
}

// DefaultPromptOptions returns the options AsPrompt uses.
func DefaultPromptOptions() PromptOptions {
	return PromptOptions{MaxTokens: DefaultPromptTokens, DedupeProblems: true}
}

// AsPrompt formats results with DefaultPromptOptions.
func (e *Engine) AsPrompt(results []*models.QueryResult) string {
	return AsPrompt(results, DefaultPromptOptions())
}

// AsPromptWith formats results with opts.
func (e *Engine) AsPromptWith(results []*models.QueryResult, opts PromptOptions) string {
	return AsPrompt(results, opts)
}

// AsPrompt renders results as a markdown block for a system prompt. Results
// are ordered by score, best first. Blocks are added until the next one would
// exceed the budget. It returns "" for no results or when nothing fits.
func AsPrompt(results []*models.QueryResult, opts PromptOptions) string {
	if len(results) == 0 {
		return ""
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultPromptTokens
	}
	budget := maxTokens * charsPerToken

	sorted := make([]*models.QueryResult, 0, len(results))
	for _, r := range results {
		if r != nil && r.Lesson != nil {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	parts := []string{promptHeader}
	used := utf8.RuneCountInString(promptHeader)
	seen := make(map[string]bool)
	for _, r := range sorted {
		if opts.DedupeProblems {
			if seen[r.Lesson.Problem] {
				continue
			}
			seen[r.Lesson.Problem] = true
		}
		block := formatBlock(r, opts.IncludeScore)
		// +1 for the newline joining blocks
		n := utf8.RuneCountInString(block) + 1
		if used+n > budget {
			break
		}
		parts = append(parts, block)
		used += n
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, "\n")
}

func formatBlock(r *models.QueryResult, withScore bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Problem:** %s\n", r.Lesson.Problem)
	fmt.Fprintf(&b, "**Resolution:** %s\n", r.Lesson.Resolution)
	fmt.Fprintf(&b, "**Confidence:** %s\n", formatConfidence(r.Lesson.Confidence))
	if withScore {
		fmt.Fprintf(&b, "**Score:** %.4f\n", r.Score)
	}
	return b.String()
}

// formatConfidence prints the shortest exact form, always with a decimal point.
func formatConfidence(c float64) string {
	s := strconv.FormatFloat(c, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
