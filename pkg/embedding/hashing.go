package embedding

import (
	"context"
)

// DefaultHashingDimensions is the vector size of NewHashingEmbedder(0).
const DefaultHashingDimensions = 256

// HashingEmbedder is a dependency-free embedder based on feature hashing of
// lowercase word unigrams and adjacent bigrams. Texts that share words get
// positive cosine similarity; it has no notion of synonyms.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder with the given vector size.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns an L2-normalised vector. Text without any word yields a
// vector with a single bias component so it is never all zeros.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimensions)
	words := Words(text)
	if len(words) == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i, w := range words {
		e.add(vec, w, 1)
		if i > 0 {
			e.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	NormalizeL2Slice(vec)
	return vec, nil
}

func (e *HashingEmbedder) add(vec []float32, feature string, weight float32) {
	h := HashString(feature)
	idx := int(h % uint64(e.dimensions))
	// The top bit picks the sign so collisions tend to cancel.
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimensions returns the vector size.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}
