package embedding

import (
	"context"
	"math"
	"sync/atomic"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
// Unrelated texts get unrelated vectors.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64
	closes     atomic.Int64
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	h := float64(HashString(text) % 1_000_003)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(h*float64(i+1))*0.1 + 0.01)
	}
	NormalizeL2Slice(emb)
	return emb, nil
}

// Calls returns how many times Embed ran.
func (e *MockEmbedder) Calls() int64 {
	return e.calls.Load()
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close records the call; Closes reports how many times it ran.
func (e *MockEmbedder) Close() error {
	e.closes.Add(1)
	return nil
}

// Closes returns how many times Close ran.
func (e *MockEmbedder) Closes() int64 {
	return e.closes.Load()
}
