// Package embedding turns text into vectors. Callers supply the embedding
// function; the Gateway wraps it with error normalisation, a dimension check
// and a per-process cache.
package embedding

import (
	"context"
	"math"
)

// Embedder produces a fixed-length vector for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a plain function to Embedder.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Dimensioned is implemented by embedders whose output size is known up front.
type Dimensioned interface {
	Dimensions() int
}

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range x {
		x[i] *= norm
	}
}
