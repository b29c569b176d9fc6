package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loreerr "github.com/hyperjump/lore/pkg/errors"
)

func TestGateway_CachesByText(t *testing.T) {
	mock := NewMockEmbedder(8)
	g, err := NewGateway(mock)
	require.NoError(t, err)
	defer g.Close()

	a, err := g.Embed(context.Background(), "timeout")
	require.NoError(t, err)
	b, err := g.Embed(context.Background(), "timeout")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(1), mock.Calls())
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1}, g.Stats())
	assert.Equal(t, 8, g.Dimensions())
}

func TestGateway_WithoutCache(t *testing.T) {
	mock := NewMockEmbedder(4)
	g, err := NewGateway(mock, WithoutCache())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := g.Embed(context.Background(), "same")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), mock.Calls())
	assert.Equal(t, CacheStats{}, g.Stats())
}

func TestGateway_SharedCacheKeyedByIdentity(t *testing.T) {
	cache, err := NewEmbeddingCache(64)
	require.NoError(t, err)
	defer cache.Close()

	one := Func(func(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil })
	two := Func(func(context.Context, string) ([]float32, error) { return []float32{0, 1}, nil })

	g1, err := NewGateway(one, WithSharedCache(cache), WithIdentity("one"))
	require.NoError(t, err)
	g2, err := NewGateway(two, WithSharedCache(cache), WithIdentity("two"))
	require.NoError(t, err)

	v1, err := g1.Embed(context.Background(), "text")
	require.NoError(t, err)
	v2, err := g2.Embed(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 0}, v1)
	assert.Equal(t, []float32{0, 1}, v2)
}

func TestGateway_Failures(t *testing.T) {
	tests := []struct {
		name string
		fn   Func
		code loreerr.Code
	}{
		{
			name: "returned error",
			fn:   func(context.Context, string) ([]float32, error) { return nil, errors.New("model offline") },
			code: loreerr.CodeEmbeddingFailure,
		},
		{
			name: "panic",
			fn:   func(context.Context, string) ([]float32, error) { panic("boom") },
			code: loreerr.CodeEmbeddingFailure,
		},
		{
			name: "empty vector",
			fn:   func(context.Context, string) ([]float32, error) { return []float32{}, nil },
			code: loreerr.CodeEmbeddingFailure,
		},
		{
			name: "nan component",
			fn: func(context.Context, string) ([]float32, error) {
				return []float32{1, float32(math.NaN())}, nil
			},
			code: loreerr.CodeEmbeddingFailure,
		},
		{
			name: "inf component",
			fn: func(context.Context, string) ([]float32, error) {
				return []float32{float32(math.Inf(1))}, nil
			},
			code: loreerr.CodeEmbeddingFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGateway(tt.fn, WithoutCache())
			require.NoError(t, err)
			_, err = g.Embed(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.code, loreerr.CodeOf(err))
			assert.True(t, loreerr.IsEmbedding(err))
			assert.Equal(t, 0, g.Dimensions())
		})
	}
}

func TestGateway_DimensionMismatch(t *testing.T) {
	n := 3
	fn := Func(func(context.Context, string) ([]float32, error) {
		v := make([]float32, n)
		v[0] = 1
		return v, nil
	})
	g, err := NewGateway(fn, WithoutCache())
	require.NoError(t, err)

	_, err = g.Embed(context.Background(), "first")
	require.NoError(t, err)

	n = 5
	_, err = g.Embed(context.Background(), "second")
	require.Error(t, err)
	assert.Equal(t, loreerr.CodeEmbeddingDimensionInvalid, loreerr.CodeOf(err))
	assert.Equal(t, 3, g.Dimensions())
}

func TestGateway_Seed(t *testing.T) {
	g, err := NewGateway(NewMockEmbedder(4), WithoutCache())
	require.NoError(t, err)
	assert.Equal(t, 4, g.Dimensions())
	require.NoError(t, g.Seed(0))
	require.NoError(t, g.Seed(4))
	assert.True(t, loreerr.IsEmbedding(g.Seed(8)))

	fn := Func(func(context.Context, string) ([]float32, error) { return []float32{1, 2}, nil })
	g2, err := NewGateway(fn)
	require.NoError(t, err)
	require.NoError(t, g2.Seed(3))
	_, err = g2.Embed(context.Background(), "x")
	assert.Equal(t, loreerr.CodeEmbeddingDimensionInvalid, loreerr.CodeOf(err))
}

func TestGateway_ReturnsCopies(t *testing.T) {
	g, err := NewGateway(NewMockEmbedder(4))
	require.NoError(t, err)
	defer g.Close()

	v, err := g.Embed(context.Background(), "a")
	require.NoError(t, err)
	orig := v[0]
	v[0] = 100

	again, err := g.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, orig, again[0])
}

func TestNewGateway_NilEmbedder(t *testing.T) {
	_, err := NewGateway(nil)
	assert.True(t, loreerr.IsValidation(err))
}

func TestIdentityOf(t *testing.T) {
	a := NewMockEmbedder(4)
	b := NewMockEmbedder(4)
	assert.NotEqual(t, identityOf(a), identityOf(b))
	assert.Equal(t, identityOf(a), identityOf(a))
}

func TestGateway_CloseLeavesBorrowedEmbedder(t *testing.T) {
	mock := NewMockEmbedder(4)
	g, err := NewGateway(mock)
	require.NoError(t, err)
	require.NoError(t, g.Close())
	assert.Equal(t, int64(0), mock.Closes())

	owned := NewMockEmbedder(4)
	g, err = NewGateway(owned, WithEmbedderOwnership())
	require.NoError(t, err)
	require.NoError(t, g.Close())
	assert.Equal(t, int64(1), owned.Closes())
}
