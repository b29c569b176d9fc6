// Package lore is a lessons-learned knowledge store. The Engine validates,
// redacts and embeds published lessons, writes them to a Store, and answers
// free-text queries by cosine similarity over every stored vector.
package lore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/lore/pkg/embedding"
	loreerr "github.com/hyperjump/lore/pkg/errors"
	"github.com/hyperjump/lore/pkg/models"
	"github.com/hyperjump/lore/pkg/ranking"
	"github.com/hyperjump/lore/pkg/redact"
	"github.com/hyperjump/lore/pkg/store"
)

// Engine orchestrates publish, query, get, list and delete. It is safe for
// concurrent use; no lock is held across the embedding call.
type Engine struct {
	store           store.Store
	gateway         *embedding.Gateway
	redactor        *redact.Redactor
	index           TextIndex
	defaultK        int
	embedResolution bool
	logger          *zap.Logger
	observer        Observer
	now             func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New builds an Engine. Without options it uses an in-memory store, the
// hashing embedder and no redaction.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.store == nil {
		o.store = store.NewMemoryStore()
	}
	if o.embedder == nil {
		o.embedder = embedding.NewHashingEmbedder(DefaultDimensions)
		o.ownsEmbedder = true
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.defaultK <= 0 {
		o.defaultK = DefaultK
	}
	if o.defaultK > MaxK {
		o.defaultK = MaxK
	}

	e := &Engine{
		store:           o.store,
		index:           o.index,
		defaultK:        o.defaultK,
		embedResolution: o.embedResolution,
		logger:          o.logger,
		observer:        o.observer,
		now:             o.now,
	}

	if o.redact {
		r, err := redact.New(o.patterns...)
		if err != nil {
			return nil, loreerr.Wrap(err, loreerr.CodeValidationInvalidInput, "invalid redaction pattern")
		}
		e.redactor = r
	}

	gwOpts := []embedding.GatewayOption{embedding.WithCacheSize(o.cacheSize)}
	if !o.cache {
		gwOpts = append(gwOpts, embedding.WithoutCache())
	}
	if o.identity != "" {
		gwOpts = append(gwOpts, embedding.WithIdentity(o.identity))
	}
	if o.ownsEmbedder {
		gwOpts = append(gwOpts, embedding.WithEmbedderOwnership())
	}
	gw, err := embedding.NewGateway(o.embedder, gwOpts...)
	if err != nil {
		return nil, err
	}
	e.gateway = gw

	if d, ok := o.store.(store.Dimensioner); ok {
		n, err := d.Dimensions(context.Background())
		if err != nil {
			_ = gw.Close()
			return nil, err
		}
		if err := gw.Seed(n); err != nil {
			_ = gw.Close()
			return nil, err
		}
	}
	return e, nil
}

// Publish validates, redacts, embeds and stores a lesson and returns its id.
// Nothing is written when validation or embedding fails.
func (e *Engine) Publish(ctx context.Context, in models.LessonInput) (id string, err error) {
	defer e.observe("publish", time.Now(), &err)
	if err := e.checkOpen(); err != nil {
		return "", err
	}

	confidence := models.DefaultConfidence
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	if err := validateConfidence(confidence); err != nil {
		return "", err
	}

	lesson := &models.Lesson{
		ID:         uuid.NewString(),
		Problem:    e.scrub(in.Problem),
		Resolution: e.scrub(in.Resolution),
		Context:    e.scrub(in.Context),
		Tags:       append(make([]string, 0, len(in.Tags)), in.Tags...),
		Confidence: confidence,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.put(ctx, lesson); err != nil {
		return "", err
	}
	e.logger.Debug("Published lesson",
		zap.String("id", lesson.ID),
		zap.Int("problem_len", len(lesson.Problem)),
		zap.Int("resolution_len", len(lesson.Resolution)),
		zap.Int("tags", len(lesson.Tags)))
	return lesson.ID, nil
}

// put embeds an already validated and redacted lesson and stores it.
func (e *Engine) put(ctx context.Context, lesson *models.Lesson) error {
	vec, err := e.gateway.Embed(ctx, e.embedText(lesson))
	if err != nil {
		e.logger.Warn("Embedding failed", zap.String("id", lesson.ID), zap.Error(err))
		return err
	}
	if err := e.store.Put(ctx, lesson, vec); err != nil {
		return err
	}
	if e.index != nil {
		if err := e.index.Index(ctx, lesson); err != nil {
			e.logger.Warn("Failed to index lesson text", zap.String("id", lesson.ID), zap.Error(err))
		}
	}
	return nil
}

// Query returns up to k lessons most similar to text, best first.
// k <= 0 uses the engine default; k is capped at MaxK.
func (e *Engine) Query(ctx context.Context, text string, k int) ([]*models.QueryResult, error) {
	return e.QueryWith(ctx, models.LessonQuery{Text: text, K: k})
}

// QueryWith is Query with tag, confidence and score filters.
func (e *Engine) QueryWith(ctx context.Context, q models.LessonQuery) (results []*models.QueryResult, err error) {
	defer e.observe("query", time.Now(), &err)
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if math.IsNaN(q.MinConfidence) || q.MinConfidence < 0 || q.MinConfidence > 1 {
		return nil, loreerr.New(loreerr.CodeValidationInvalidInput,
			fmt.Sprintf("min_confidence must be between 0.0 and 1.0, got %v", q.MinConfidence))
	}
	if math.IsNaN(q.MinScore) {
		return nil, loreerr.New(loreerr.CodeValidationInvalidInput, "min_score must be a number")
	}

	vec, err := e.gateway.Embed(ctx, q.Text)
	if err != nil {
		e.logger.Warn("Query embedding failed", zap.Error(err))
		return nil, err
	}
	candidates, err := e.store.AllWithVectors(ctx)
	if err != nil {
		return nil, err
	}

	var filter ranking.Filter
	if len(q.Tags) > 0 || q.MinConfidence > 0 {
		filter = func(l *models.Lesson) bool {
			return l.Confidence >= q.MinConfidence && l.HasTags(q.Tags)
		}
	}
	results = ranking.RankFiltered(vec, candidates, e.resolveK(q.K), ranking.Options{
		MinScore: q.MinScore,
		Filter:   filter,
	})
	if e.observer != nil {
		e.observer.ObserveQueryResults(len(results))
	}
	return results, nil
}

// Get returns the lesson with id, or nil when it does not exist.
func (e *Engine) Get(ctx context.Context, id string) (*models.Lesson, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, id)
}

// List returns every lesson in insertion order.
func (e *Engine) List(ctx context.Context) ([]*models.Lesson, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.List(ctx)
}

// Delete removes a lesson and its embedding and reports whether it existed.
func (e *Engine) Delete(ctx context.Context, id string) (deleted bool, err error) {
	defer e.observe("delete", time.Now(), &err)
	if err := e.checkOpen(); err != nil {
		return false, err
	}
	deleted, err = e.store.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	if e.index != nil {
		if err := e.index.Delete(ctx, id); err != nil {
			e.logger.Warn("Failed to remove lesson from text index", zap.String("id", id), zap.Error(err))
		}
	}
	e.logger.Debug("Deleted lesson", zap.String("id", id))
	return true, nil
}

// KeywordSearch runs text against the keyword index and returns matching lessons.
func (e *Engine) KeywordSearch(ctx context.Context, text string, k int) ([]*models.QueryResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if e.index == nil {
		return nil, loreerr.New(loreerr.CodeEngineNotImplemented, "keyword search requires a text index")
	}
	hits, err := e.index.Search(ctx, text, e.resolveK(k))
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeStoreFailure, "keyword search failed")
	}
	results := make([]*models.QueryResult, 0, len(hits))
	for _, h := range hits {
		l, err := e.store.Get(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		if l == nil {
			continue
		}
		results = append(results, &models.QueryResult{Lesson: l, Score: h.Score})
	}
	return results, nil
}

// RebuildTextIndex indexes every stored lesson. It is a no-op without a text index.
func (e *Engine) RebuildTextIndex(ctx context.Context) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if e.index == nil {
		return 0, nil
	}
	lessons, err := e.store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, l := range lessons {
		if err := e.index.Index(ctx, l); err != nil {
			return 0, loreerr.Wrap(err, loreerr.CodeStoreFailure, "failed to index lesson", loreerr.FieldLessonID(l.ID))
		}
	}
	return len(lessons), nil
}

// Stats describes the engine's current contents.
type Stats struct {
	Lessons    int                  `json:"lessons"`
	Dimensions int                  `json:"dimensions"`
	Redaction  bool                 `json:"redaction"`
	DefaultK   int                  `json:"default_k"`
	Cache      embedding.CacheStats `json:"cache"`
	DiskBytes  int64                `json:"disk_bytes"`
}

// Stats reports lesson count, vector dimension and cache counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	if err := e.checkOpen(); err != nil {
		return Stats{}, err
	}
	n, err := e.countLessons(ctx)
	if err != nil {
		return Stats{}, err
	}
	disk, err := store.UsageBytes(e.store)
	if err != nil {
		e.logger.Warn("Failed to measure store size", zap.Error(err))
	}
	return Stats{
		Lessons:    n,
		Dimensions: e.gateway.Dimensions(),
		Redaction:  e.redactor != nil,
		DefaultK:   e.defaultK,
		Cache:      e.gateway.Stats(),
		DiskBytes:  disk,
	}, nil
}

func (e *Engine) countLessons(ctx context.Context) (int, error) {
	if c, ok := e.store.(store.Counter); ok {
		n, err := c.Count(ctx)
		return int(n), err
	}
	lessons, err := e.store.List(ctx)
	return len(lessons), err
}

// CacheStats returns embedding cache hits and misses.
func (e *Engine) CacheStats() embedding.CacheStats {
	return e.gateway.Stats()
}

// Close releases the store, the text index, and the embedder when the engine
// owns it (see WithOwnedEmbedder). Later calls fail with
// an engine-closed error; closing again is a no-op.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		var errs []error
		if e.index != nil {
			errs = append(errs, e.index.Close())
		}
		errs = append(errs, e.gateway.Close(), e.store.Close())
		e.closeErr = loreerr.Join(errs...)
	})
	return e.closeErr
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return loreerr.New(loreerr.CodeEngineClosed, "engine is closed")
	}
	return nil
}

func (e *Engine) resolveK(k int) int {
	if k <= 0 {
		k = e.defaultK
	}
	if k > MaxK {
		k = MaxK
	}
	return k
}

func (e *Engine) scrub(text string) string {
	if e.redactor == nil {
		return text
	}
	return e.redactor.Redact(text)
}

func (e *Engine) embedText(l *models.Lesson) string {
	if e.embedResolution {
		return l.Problem + "\n" + l.Resolution
	}
	return l.Problem
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	if e.observer == nil {
		return
	}
	e.observer.ObserveOperation(op, time.Since(start), *err)
}

func validateConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return loreerr.New(loreerr.CodeValidationInvalidInput,
			fmt.Sprintf("confidence must be between 0.0 and 1.0, got %v", c),
			loreerr.Field("confidence", c))
	}
	return nil
}
