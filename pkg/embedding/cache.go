package embedding

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// DefaultCacheSize is the number of embeddings kept per gateway.
const DefaultCacheSize = 10000

// EmbeddingCache is a bounded cache of embeddings keyed by string.
// Values are copied on the way in and out.
type EmbeddingCache struct {
	cache *ristretto.Cache
}

// NewEmbeddingCache creates a cache holding about capacity entries.
func NewEmbeddingCache(capacity int) (*EmbeddingCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(capacity) * 10,
		MaxCost:            int64(capacity),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &EmbeddingCache{cache: c}, nil
}

// Get returns the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return cloneVector(vec), true
}

// Set stores the embedding for key. Admission is decided by the cache policy,
// so a later Get may still miss.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.cache.Set(key, cloneVector(value), 1)
	c.cache.Wait()
}

// Clear drops every entry.
func (c *EmbeddingCache) Clear() {
	c.cache.Clear()
}

// Close stops the cache's background goroutines.
func (c *EmbeddingCache) Close() {
	c.cache.Close()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
