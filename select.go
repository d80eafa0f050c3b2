package sqlrag

import (
	"context"
	"errors"
	"sort"
)

// SelectExamples returns at most k examples from the storage, most similar to the question
// first. Examples with the same similarity keep the order they were inserted into the corpus.
//
// It returns an error wrapping ErrEmbeddingFailure when the question can't be embedded, and
// ErrIndexUnavailable for any other failure of the storage.
func SelectExamples(ctx context.Context, question string, k int, storage ExampleStorage) ([]Example, error) {
	if k <= 0 {
		return []Example{}, nil
	}

	matches, err := storage.VectorQueryExamples(ctx, question, k)
	if err != nil {
		if errors.Is(err, ErrEmbeddingFailure) {
			return nil, err
		}
		return nil, wrapErr(ErrIndexUnavailable, err)
	}

	sorted := make([]ExampleMatch, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Similarity != sorted[j].Similarity {
			return sorted[i].Similarity > sorted[j].Similarity
		}
		return sorted[i].OrderIndex < sorted[j].OrderIndex
	})

	if len(sorted) > k {
		sorted = sorted[:k]
	}

	examples := make([]Example, len(sorted))
	for i, match := range sorted {
		examples[i] = match.Example
	}

	return examples, nil
}
