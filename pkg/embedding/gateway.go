package embedding

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sync"
	"sync/atomic"

	loreerr "github.com/hyperjump/lore/pkg/errors"
)

// Gateway delegates to an Embedder and surfaces every failure as an
// embedding error. The first successful vector fixes the dimension for the
// gateway's lifetime. It does not retry and imposes no timeout of its own.
type Gateway struct {
	embedder  Embedder
	owns      bool
	identity  string
	cache     *EmbeddingCache
	ownsCache bool
	noCache   bool
	cacheSize int

	mu   sync.Mutex
	dims int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithIdentity sets the name of the embedding function used in cache keys.
// Gateways sharing a cache must use distinct identities per function.
func WithIdentity(id string) GatewayOption {
	return func(g *Gateway) { g.identity = id }
}

// WithSharedCache uses c instead of a private cache. The gateway does not close it.
func WithSharedCache(c *EmbeddingCache) GatewayOption {
	return func(g *Gateway) { g.cache = c }
}

// WithCacheSize sets the capacity of the private cache.
func WithCacheSize(n int) GatewayOption {
	return func(g *Gateway) { g.cacheSize = n }
}

// WithEmbedderOwnership makes Close also close the embedder when it has a
// Close method.
func WithEmbedderOwnership() GatewayOption {
	return func(g *Gateway) { g.owns = true }
}

// WithoutCache disables caching; every call reaches the embedder.
func WithoutCache() GatewayOption {
	return func(g *Gateway) { g.noCache = true }
}

// CacheStats counts cache lookups.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// NewGateway wraps e.
func NewGateway(e Embedder, opts ...GatewayOption) (*Gateway, error) {
	if e == nil {
		return nil, loreerr.New(loreerr.CodeValidationInvalidInput, "embedding function is required")
	}
	g := &Gateway{embedder: e, cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(g)
	}
	if g.identity == "" {
		g.identity = identityOf(e)
	}
	if g.noCache {
		g.cache = nil
	} else if g.cache == nil {
		c, err := NewEmbeddingCache(g.cacheSize)
		if err != nil {
			return nil, err
		}
		g.cache = c
		g.ownsCache = true
	}
	if d, ok := e.(Dimensioned); ok && d.Dimensions() > 0 {
		g.dims = d.Dimensions()
	}
	return g, nil
}

// Embed returns the vector for text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	key := g.identity + "\x00" + text
	if g.cache != nil {
		if vec, ok := g.cache.Get(key); ok {
			g.hits.Add(1)
			return vec, nil
		}
		g.misses.Add(1)
	}

	vec, err := g.call(ctx, text)
	if err != nil {
		return nil, loreerr.Wrap(err, loreerr.CodeEmbeddingFailure, "embedding function failed")
	}
	if len(vec) == 0 {
		return nil, loreerr.New(loreerr.CodeEmbeddingFailure, "embedding function returned an empty vector")
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, loreerr.New(loreerr.CodeEmbeddingFailure, "embedding contains a non-finite value",
				loreerr.Field("index", i))
		}
	}
	if err := g.establish(len(vec)); err != nil {
		return nil, err
	}

	out := cloneVector(vec)
	if g.cache != nil {
		g.cache.Set(key, out)
	}
	return out, nil
}

// call invokes the embedder, turning a panic into an error.
func (g *Gateway) call(ctx context.Context, text string) (vec []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("embedding function panicked: %v", r)
		}
	}()
	return g.embedder.Embed(ctx, text)
}

func (g *Gateway) establish(n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dims == 0 {
		g.dims = n
		return nil
	}
	if n != g.dims {
		return loreerr.New(loreerr.CodeEmbeddingDimensionInvalid,
			fmt.Sprintf("embedding dimension mismatch: got %d, expected %d", n, g.dims),
			loreerr.Field("got", n), loreerr.Field("expected", g.dims))
	}
	return nil
}

// Seed fixes the dimension before the first call, e.g. from vectors already in a store.
// d <= 0 is ignored.
func (g *Gateway) Seed(d int) error {
	if d <= 0 {
		return nil
	}
	return g.establish(d)
}

// Dimensions returns the established dimension, or 0 before the first success.
func (g *Gateway) Dimensions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dims
}

// Identity returns the cache identity of the wrapped embedder.
func (g *Gateway) Identity() string {
	return g.identity
}

// Stats returns cache hit and miss counts.
func (g *Gateway) Stats() CacheStats {
	return CacheStats{Hits: g.hits.Load(), Misses: g.misses.Load()}
}

// Close releases the private cache, and the embedder if the gateway owns it.
func (g *Gateway) Close() error {
	if g.ownsCache && g.cache != nil {
		g.cache.Close()
		g.cache = nil
	}
	if !g.owns {
		return nil
	}
	if c, ok := g.embedder.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func identityOf(e Embedder) string {
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%T@%x", e, v.Pointer())
	default:
		return fmt.Sprintf("%T", e)
	}
}
