package lore

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/lore/pkg/embedding"
	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/models"
	"github.com/hyperjump/lore/pkg/redact"
	"github.com/hyperjump/lore/pkg/store"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func conf(c float64) *float64 { return &c }

func publish(t *testing.T, e *Engine, problem, resolution string, tags ...string) string {
	t.Helper()
	id, err := e.Publish(context.Background(), models.LessonInput{
		Problem:    problem,
		Resolution: resolution,
		Tags:       tags,
	})
	require.NoError(t, err)
	return id
}

func TestPublish_Get(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	e := newEngine(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	id, err := e.Publish(ctx, models.LessonInput{
		Problem:    "Stripe API returns 429",
		Resolution: "Add exponential backoff",
		Context:    "billing worker",
		Tags:       []string{"stripe", "rate-limit"},
		Confidence: conf(0.9),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := e.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Stripe API returns 429", got.Problem)
	assert.Equal(t, "Add exponential backoff", got.Resolution)
	assert.Equal(t, "billing worker", got.Context)
	assert.Equal(t, []string{"stripe", "rate-limit"}, got.Tags)
	assert.Equal(t, 0.9, got.Confidence)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
}

func TestPublish_DefaultConfidenceAndTags(t *testing.T) {
	e := newEngine(t)
	id := publish(t, e, "p", "r")
	got, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConfidence, got.Confidence)
	assert.NotNil(t, got.Tags)
	assert.Empty(t, got.Tags)
}

func TestPublish_UniqueIDs(t *testing.T) {
	e := newEngine(t)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := publish(t, e, "same", "same")
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestPublish_ConfidenceBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		ok    bool
	}{
		{"zero", 0.0, true},
		{"one", 1.0, true},
		{"middle", 0.42, true},
		{"negative", -0.1, false},
		{"above one", 1.1, false},
		{"nan", math.NaN(), false},
		{"inf", math.Inf(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			ctx := context.Background()
			id, err := e.Publish(ctx, models.LessonInput{Problem: "p", Resolution: "r", Confidence: conf(tt.value)})
			if tt.ok {
				require.NoError(t, err)
				got, err := e.Get(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, tt.value, got.Confidence)
				return
			}
			require.Error(t, err)
			assert.True(t, loreerr.IsValidation(err))
			assert.Empty(t, id)
			list, err := e.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestPublish_EmbeddingFailureLeavesStoreUnchanged(t *testing.T) {
	e := newEngine(t, WithEmbeddingFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("model unavailable")
	}))
	ctx := context.Background()
	_, err := e.Publish(ctx, models.LessonInput{Problem: "p", Resolution: "r"})
	require.Error(t, err)
	assert.True(t, loreerr.IsEmbedding(err))

	list, err := e.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPublish_EmbeddingPanic(t *testing.T) {
	e := newEngine(t, WithEmbeddingFunc(func(context.Context, string) ([]float32, error) {
		panic("segfault in model")
	}))
	_, err := e.Publish(context.Background(), models.LessonInput{Problem: "p", Resolution: "r"})
	assert.True(t, loreerr.IsEmbedding(err))
}

func TestPublish_DimensionMismatch(t *testing.T) {
	dims := 4
	e := newEngine(t, WithCache(false), WithEmbeddingFunc(func(context.Context, string) ([]float32, error) {
		v := make([]float32, dims)
		v[0] = 1
		return v, nil
	}))
	publish(t, e, "first", "r")
	dims = 8
	_, err := e.Publish(context.Background(), models.LessonInput{Problem: "second", Resolution: "r"})
	require.Error(t, err)
	assert.Equal(t, loreerr.CodeEmbeddingDimensionInvalid, loreerr.CodeOf(err))

	list, err := e.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetDelete_Missing(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	got, err := e.Get(ctx, "nonexistent-id")
	assert.NoError(t, err)
	assert.Nil(t, got)

	ok, err := e.Delete(ctx, "nonexistent-id")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	id := publish(t, e, "rate limit", "backoff")
	keep := publish(t, e, "timeout", "retry")

	ok, err := e.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	results, err := e.Query(ctx, "rate limit", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep, results[0].Lesson.ID)
}

func TestEmpty(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	list, err := e.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	results, err := e.Query(ctx, "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestQuery_EmptyStoreStillEmbeds(t *testing.T) {
	e := newEngine(t, WithEmbeddingFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("down")
	}))
	_, err := e.Query(context.Background(), "anything", 5)
	assert.True(t, loreerr.IsEmbedding(err))
}

func TestList_InsertionOrder(t *testing.T) {
	e := newEngine(t)
	a := publish(t, e, "a", "a")
	b := publish(t, e, "b", "b")
	c := publish(t, e, "c", "c")
	list, err := e.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{a, b, c}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestTags_Symbols(t *testing.T) {
	e := newEngine(t)
	id := publish(t, e, "p", "r", "c++", "c#", "v2.0")
	got, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"c++", "c#", "v2.0"}, got.Tags)
}

func TestRoundTrip_Fidelity(t *testing.T) {
	texts := []string{
		"API返回错误代码：429（请求过多）",
		"🔥 Server on fire 🔥",
		"خطأ في الاتصال بالخادم",
		"Error in модуль авторизации for user テスト",
		"Error\non\nmultiple\nlines\twith\ttabs",
		"'; DROP TABLE lessons; --",
		"<script>alert('xss')</script>",
		"Has null\x00byte",
		`Path is C:\Users\test\"file"`,
		strings.Repeat("x", 100_000),
		"",
	}
	stores := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return store.NewMemoryStore() },
		"sqlite": func(t *testing.T) store.Store {
			s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "lore.db"))
			require.NoError(t, err)
			return s
		},
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, WithStore(open(t)))
			ctx := context.Background()
			for _, text := range texts {
				id, err := e.Publish(ctx, models.LessonInput{Problem: text, Resolution: text})
				require.NoError(t, err)
				got, err := e.Get(ctx, id)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, text, got.Problem)
				assert.Equal(t, text, got.Resolution)
			}
		})
	}
}

func TestQuery_Deterministic(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	for _, p := range []string{"rate limit", "rate limit", "timeout", "limit on rate", "connection pool"} {
		publish(t, e, p, "fix")
	}
	first, err := e.Query(ctx, "rate limit errors", 4)
	require.NoError(t, err)
	second, err := e.Query(ctx, "rate limit errors", 4)
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Lesson.ID, second[i].Lesson.ID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
	}
}

func TestQuery_K(t *testing.T) {
	e := newEngine(t, WithDefaultK(2))
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		publish(t, e, "lesson", "fix")
	}
	results, err := e.Query(ctx, "lesson", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = e.Query(ctx, "lesson", 4)
	require.NoError(t, err)
	assert.Len(t, results, 4)

	results, err = e.Query(ctx, "lesson", 1000)
	require.NoError(t, err)
	assert.Len(t, results, 6)
}

func TestQuery_RateLimitScenario(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rate := publish(t, e, "Stripe API returns 429 when we exceed rate limits",
		"Add exponential backoff starting at 1s, cap at 32s", "stripe", "rate-limit")
	timeout := publish(t, e, "OpenAI requests time out on large prompts",
		"Split the prompt into chunks and process sequentially", "openai", "timeout")

	results, err := e.Query(ctx, "how to handle API rate limits", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, rate, results[0].Lesson.ID)
	assert.Equal(t, timeout, results[1].Lesson.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestQueryWith_Filters(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.Publish(ctx, models.LessonInput{Problem: "rate limit", Resolution: "r", Tags: []string{"api"}, Confidence: conf(0.9)})
	require.NoError(t, err)
	_, err = e.Publish(ctx, models.LessonInput{Problem: "rate limit", Resolution: "r", Tags: []string{"api"}, Confidence: conf(0.2)})
	require.NoError(t, err)
	_, err = e.Publish(ctx, models.LessonInput{Problem: "rate limit", Resolution: "r", Tags: []string{"db"}, Confidence: conf(0.9)})
	require.NoError(t, err)

	results, err := e.QueryWith(ctx, models.LessonQuery{Text: "rate limit", Tags: []string{"api"}, MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.9, results[0].Lesson.Confidence)
	assert.Equal(t, []string{"api"}, results[0].Lesson.Tags)

	results, err = e.QueryWith(ctx, models.LessonQuery{Text: "completely unrelated words", MinScore: 0.99})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = e.QueryWith(ctx, models.LessonQuery{Text: "x", MinConfidence: 2})
	assert.True(t, loreerr.IsValidation(err))
}

func TestRedaction_Scenario(t *testing.T) {
	e := newEngine(t, WithRedaction(true))
	ctx := context.Background()
	id, err := e.Publish(ctx, models.LessonInput{
		Problem:    "test@example.com",
		Resolution: "sk-abc123def456ghi789jkl012mno",
		Context:    "Server 192.168.1.100 was down",
	})
	require.NoError(t, err)
	got, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, got.Problem, "test@example.com")
	assert.NotContains(t, got.Resolution, "sk-abc123")
	assert.Contains(t, got.Context, "[REDACTED:ip_address]")
}

func TestRedaction_OffByDefault(t *testing.T) {
	e := newEngine(t)
	id := publish(t, e, "key sk-abc123def456ghi789jkl012", "fixed")
	got, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, got.Problem, "sk-abc123")
}

func TestRedaction_CustomPatterns(t *testing.T) {
	e := newEngine(t, WithRedactPatterns(redact.Pattern{Name: "account_id", Expr: `ACCT-\d+`}))
	id := publish(t, e, "Check ACCT-99887766", "fixed")
	got, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Check [REDACTED:account_id]", got.Problem)

	_, err = New(WithRedactPatterns(redact.Pattern{Name: "bad", Expr: "(("}))
	assert.True(t, loreerr.IsValidation(err))
}

func TestRedaction_QueryTextNotRedacted(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	e := newEngine(t, WithRedaction(true), WithEmbeddingFunc(func(_ context.Context, text string) ([]float32, error) {
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()
		return []float32{1, 0}, nil
	}))
	_, err := e.Query(context.Background(), "mail admin@secret.com", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"mail admin@secret.com"}, seen)
}

func TestEmbedResolution(t *testing.T) {
	var seen []string
	e := newEngine(t, WithEmbedResolution(true), WithEmbeddingFunc(func(_ context.Context, text string) ([]float32, error) {
		seen = append(seen, text)
		return []float32{1}, nil
	}))
	publish(t, e, "problem", "resolution")
	assert.Equal(t, []string{"problem\nresolution"}, seen)
}

func TestClose(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	ctx := context.Background()
	_, err = e.Publish(ctx, models.LessonInput{Problem: "p", Resolution: "r"})
	assert.Equal(t, loreerr.CodeEngineClosed, loreerr.CodeOf(err))
	_, err = e.Query(ctx, "p", 1)
	assert.True(t, loreerr.IsClosed(err))
	_, err = e.Get(ctx, "x")
	assert.True(t, loreerr.IsClosed(err))
	_, err = e.List(ctx)
	assert.True(t, loreerr.IsClosed(err))
	_, err = e.Delete(ctx, "x")
	assert.True(t, loreerr.IsClosed(err))
}

func TestClose_EmbedderOwnership(t *testing.T) {
	borrowed := embedding.NewMockEmbedder(8)
	e, err := New(WithEmbedder(borrowed))
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.Equal(t, int64(0), borrowed.Closes())

	owned := embedding.NewMockEmbedder(8)
	e, err = New(WithOwnedEmbedder(owned))
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, int64(1), owned.Closes())
}

func TestSQLite_ReopenSeedsDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lore.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	e, err := New(WithStore(s), WithEmbedder(embedding.NewHashingEmbedder(32)))
	require.NoError(t, err)
	id := publish(t, e, "persisted lesson", "survives restart")
	require.NoError(t, e.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	e = newEngine(t, WithStore(s), WithEmbedder(embedding.NewHashingEmbedder(32)))
	got, err := e.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "persisted lesson", got.Problem)

	results, err := e.Query(ctx, "persisted lesson", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Lesson.ID)

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = New(WithStore(s), WithEmbedder(embedding.NewHashingEmbedder(64)))
	assert.True(t, loreerr.IsEmbedding(err))
	_ = s.Close()
}

func TestConcurrentPublishQuery(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.Publish(ctx, models.LessonInput{Problem: "concurrent rate limit", Resolution: "r"})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := e.Query(ctx, "rate limit", 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	list, err := e.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 16)
}

type recordingObserver struct {
	mu      sync.Mutex
	ops     []string
	results []int
}

func (r *recordingObserver) ObserveOperation(op string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingObserver) ObserveQueryResults(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, n)
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	e := newEngine(t, WithObserver(obs))
	ctx := context.Background()
	id := publish(t, e, "p", "r")
	_, err := e.Query(ctx, "p", 5)
	require.NoError(t, err)
	_, err = e.Delete(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, []string{"publish", "query", "delete"}, obs.ops)
	assert.Equal(t, []int{1}, obs.results)
}

func TestStats(t *testing.T) {
	e := newEngine(t, WithRedaction(true))
	ctx := context.Background()
	publish(t, e, "p", "r")
	_, err := e.Query(ctx, "p", 1)
	require.NoError(t, err)

	st, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Lessons)
	assert.Equal(t, DefaultDimensions, st.Dimensions)
	assert.True(t, st.Redaction)
	assert.Equal(t, DefaultK, st.DefaultK)
	assert.Equal(t, uint64(1), st.Cache.Hits)
}
