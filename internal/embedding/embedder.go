// Package embedding turns note text into the dense vectors the semantic
// index and clustering work on. The production path runs a sentence
// transformer through ONNX Runtime; tests and ONNX-less builds use a
// deterministic mock.
package embedding

import "context"

// Embedder maps text to a unit-length vector. Implementations embed a
// note's title and content joined as one document; the caller decides
// the concatenation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
