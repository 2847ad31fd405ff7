// Package embedding turns response text into fixed-size vectors for
// semantic drift comparison.
package embedding

import "context"

// Embedder produces one vector per input text. Implementations must
// be deterministic for equal inputs so that drift comparisons are
// reproducible.
type Embedder interface {
	// Dim is the vector dimensionality.
	Dim() int
	// EmbedBatch embeds texts in order, one vector per text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}
