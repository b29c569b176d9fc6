package lore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperjump/lore/pkg/models"
)

func result(problem, resolution string, confidence, score float64) *models.QueryResult {
	return &models.QueryResult{
		Lesson: &models.Lesson{Problem: problem, Resolution: resolution, Confidence: confidence},
		Score:  score,
	}
}

func TestAsPrompt_Empty(t *testing.T) {
	assert.Equal(t, "", AsPrompt(nil, DefaultPromptOptions()))
	assert.Equal(t, "", AsPrompt([]*models.QueryResult{}, DefaultPromptOptions()))
}

func TestAsPrompt_Format(t *testing.T) {
	got := AsPrompt([]*models.QueryResult{
		result("timeouts", "retry", 0.5, 0.2),
		result("429s", "backoff", 1, 0.9),
	}, DefaultPromptOptions())

	want := "## Relevant Lessons\n" +
		"\n" +
		"**Problem:** 429s\n**Resolution:** backoff\n**Confidence:** 1.0\n" +
		"\n" +
		"**Problem:** timeouts\n**Resolution:** retry\n**Confidence:** 0.5\n"
	assert.Equal(t, want, got)
}

func TestAsPrompt_IncludeScore(t *testing.T) {
	got := AsPrompt([]*models.QueryResult{result("p", "r", 0.9, 0.87654)},
		PromptOptions{IncludeScore: true})
	assert.Contains(t, got, "**Score:** 0.8765\n")
}

func TestAsPrompt_Budget(t *testing.T) {
	big := strings.Repeat("y", 300)
	results := []*models.QueryResult{
		result("first "+big, "r", 0.9, 0.9),
		result("second "+big, "r", 0.8, 0.8),
	}
	// 100 tokens = 400 chars: header plus one block fit, the second does not.
	got := AsPrompt(results, PromptOptions{MaxTokens: 100})
	assert.Contains(t, got, "first")
	assert.NotContains(t, got, "second")
	assert.LessOrEqual(t, len([]rune(got)), 400)

	assert.Equal(t, "", AsPrompt(results, PromptOptions{MaxTokens: 10}))
}

func TestAsPrompt_BudgetCountsRunes(t *testing.T) {
	// 50 three-byte runes: 150 bytes but 50 characters.
	cjk := strings.Repeat("日", 50)
	got := AsPrompt([]*models.QueryResult{result(cjk, "r", 0.5, 1)}, PromptOptions{MaxTokens: 35})
	assert.Contains(t, got, cjk)
}

func TestAsPrompt_Dedupe(t *testing.T) {
	results := []*models.QueryResult{
		result("same", "worse", 0.5, 0.4),
		result("same", "better", 0.5, 0.9),
		result("other", "r", 0.5, 0.5),
	}
	got := AsPrompt(results, DefaultPromptOptions())
	assert.Equal(t, 1, strings.Count(got, "**Problem:** same"))
	assert.Contains(t, got, "better")
	assert.NotContains(t, got, "worse")

	got = AsPrompt(results, PromptOptions{})
	assert.Equal(t, 2, strings.Count(got, "**Problem:** same"))
}

func TestAsPrompt_StableForTies(t *testing.T) {
	got := AsPrompt([]*models.QueryResult{
		result("a", "r", 0.5, 0.5),
		result("b", "r", 0.5, 0.5),
	}, DefaultPromptOptions())
	assert.Less(t, strings.Index(got, "**Problem:** a"), strings.Index(got, "**Problem:** b"))
}

func TestEngine_AsPrompt(t *testing.T) {
	e := newEngine(t)
	publish(t, e, "Stripe 429", "backoff")
	results, err := e.Query(context.Background(), "Stripe 429", 5)
	assert.NoError(t, err)
	got := e.AsPrompt(results)
	assert.True(t, strings.HasPrefix(got, "## Relevant Lessons\n"))
	assert.Contains(t, got, "**Confidence:** 0.5\n")
	assert.Equal(t, got, e.AsPromptWith(results, DefaultPromptOptions()))
}
