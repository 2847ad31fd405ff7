package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const defaultDim = 384

// Hashing is a feature-hashing embedder. Each token is hashed with
// FNV-1a onto a bucket with a hash-derived sign, and the vector is
// L2-normalized. It has no vocabulary and needs no model download,
// which keeps drift detection self-contained; swap in a real model
// behind the Embedder interface for production-quality semantics.
type Hashing struct {
	dim int
}

// NewHashing builds an embedder with the default dimensionality.
func NewHashing() *Hashing {
	return &Hashing{dim: defaultDim}
}

// NewHashingDim builds an embedder with a custom dimensionality.
func NewHashingDim(dim int) *Hashing {
	if dim <= 0 {
		dim = defaultDim
	}
	return &Hashing{dim: dim}
}

func (h *Hashing) Dim() int { return h.dim }

func (h *Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *Hashing) embed(text string) []float64 {
	vec := make([]float64, h.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		hasher := fnv.New64a()
		hasher.Write([]byte(token))
		sum := hasher.Sum64()
		bucket := sum % uint64(h.dim)
		if (sum>>31)&1 == 1 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
