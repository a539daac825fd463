package embedding

import (
	"context"
	"math"
)

const defaultDimensions = 384

// MockEmbedder derives a unit vector from a hash of the text. The same text
// always maps to the same vector, so tests can assert exact-match similarity
// without a model on disk.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a deterministic embedder producing vectors of the
// given dimension, defaulting to the production model's 384.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the hash-seeded vector for text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	seed := float64(HashString(text))
	if seed == 0 {
		seed = 1
	}
	vec := make([]float32, e.dimensions)
	for i := range vec {
		// The seed multiplies the component index, so vectors for different
		// texts stay decorrelated rather than phase-shifted copies.
		vec[i] = float32(math.Sin(seed * float64(i+1)))
	}
	NormalizeL2Slice(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured vector dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
