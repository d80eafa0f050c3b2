package storage

import (
	"context"
	"math"
)

// EmbeddingFunc returns the embedding vector of a text. Its signature matches both chromem's
// embedding functions and the Embed methods of the llm package.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// normalized wraps f so every vector it returns has unit length. chromem ranks by dot product,
// which equals the cosine similarity only for normalized vectors.
func normalized(f EmbeddingFunc) EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vector, err := f(ctx, text)
		if err != nil {
			return nil, err
		}
		return normalizeVector(vector), nil
	}
}

// normalizeVector returns v scaled to unit length. A zero vector is returned unchanged.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)

	res := make([]float32, len(v))
	for i, x := range v {
		res[i] = float32(float64(x) / norm)
	}
	return res
}
