package lore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lore/pkg/embedding"
	"github.com/hyperjump/lore/pkg/models"
	"github.com/hyperjump/lore/pkg/redact"
	"github.com/hyperjump/lore/pkg/store"
)

const (
	// DefaultK is the number of results a query returns when k <= 0.
	DefaultK = 5
	// MaxK caps k for every query.
	MaxK = 100
	// DefaultDimensions is the vector size of the built-in hashing embedder.
	DefaultDimensions = embedding.DefaultHashingDimensions
)

// Observer receives timing and outcome for engine operations.
type Observer interface {
	ObserveOperation(op string, d time.Duration, err error)
	ObserveQueryResults(n int)
}

// TextIndex is a keyword index kept alongside the store.
type TextIndex interface {
	Index(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, text string, limit int) ([]models.TextHit, error)
	Close() error
}

type options struct {
	store           store.Store
	embedder        embedding.Embedder
	ownsEmbedder    bool
	redact          bool
	patterns        []redact.Pattern
	defaultK        int
	embedResolution bool
	cache           bool
	cacheSize       int
	identity        string
	logger          *zap.Logger
	observer        Observer
	index           TextIndex
	now             func() time.Time
}

// Option configures an Engine.
type Option func(*options)

// WithStore sets the lesson store. The engine closes it on Close.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithEmbedder sets the embedding function. The caller keeps ownership: the
// engine never closes it.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) {
		o.embedder = e
		o.ownsEmbedder = false
	}
}

// WithOwnedEmbedder is WithEmbedder for an embedder the engine should close
// on Close, such as an ONNX session built only for this engine.
func WithOwnedEmbedder(e embedding.Embedder) Option {
	return func(o *options) {
		o.embedder = e
		o.ownsEmbedder = true
	}
}

// WithEmbeddingFunc sets the embedding function from a plain func.
func WithEmbeddingFunc(fn func(ctx context.Context, text string) ([]float32, error)) Option {
	return func(o *options) {
		o.embedder = embedding.Func(fn)
		o.ownsEmbedder = false
	}
}

// WithEmbedderIdentity names the embedding function in cache keys.
func WithEmbedderIdentity(id string) Option {
	return func(o *options) { o.identity = id }
}

// WithRedaction toggles redaction of problem, resolution and context before storage.
func WithRedaction(on bool) Option {
	return func(o *options) { o.redact = on }
}

// WithRedactPatterns adds caller patterns after the built-in layers and turns redaction on.
func WithRedactPatterns(patterns ...redact.Pattern) Option {
	return func(o *options) {
		o.patterns = append(o.patterns, patterns...)
		o.redact = true
	}
}

// WithDefaultK sets the result count used when a query passes k <= 0.
func WithDefaultK(k int) Option {
	return func(o *options) { o.defaultK = k }
}

// WithEmbedResolution embeds problem and resolution together instead of the problem alone.
func WithEmbedResolution(on bool) Option {
	return func(o *options) { o.embedResolution = on }
}

// WithCache toggles the per-process embedding cache.
func WithCache(on bool) Option {
	return func(o *options) { o.cache = on }
}

// WithCacheSize sets the embedding cache capacity.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithTextIndex keeps idx in sync with the store and enables KeywordSearch.
// The engine closes it on Close.
func WithTextIndex(idx TextIndex) Option {
	return func(o *options) { o.index = idx }
}

// WithClock overrides the time source for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func defaultOptions() *options {
	return &options{
		defaultK:  DefaultK,
		cache:     true,
		cacheSize: embedding.DefaultCacheSize,
		now:       time.Now,
	}
}
