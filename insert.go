package sqlrag

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// InsertExamples stores the examples of a few-shot corpus into the storage.
// Each example keeps its position in the slice as its insertion order, which breaks ties
// between equally similar examples at query time. Up to concurrency examples are embedded and
// stored at the same time.
// It returns an error if any example fails to be stored.
func InsertExamples(
	ctx context.Context,
	examples []Example,
	storage ExampleStorage,
	concurrency int,
	logger *slog.Logger,
) error {
	logger = logger.With(
		slog.String("package", "sqlrag"),
		slog.String("function", "InsertExamples"),
	)

	if concurrency <= 0 {
		concurrency = 1
	}

	logger.Info("Inserting examples", "count", len(examples), "concurrency", concurrency)

	cleaned := make([]Example, len(examples))
	for i, example := range examples {
		cleaned[i] = Example{
			Question:  cleanContent(example.Question),
			SQLQuery:  cleanContent(example.SQLQuery),
			SQLResult: cleanContent(example.SQLResult),
			Answer:    cleanContent(example.Answer),
		}
		if cleaned[i].Question == "" {
			return fmt.Errorf("example %d has no question", i)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	// Semaphore to limit concurrent embedding calls
	sem := make(chan struct{}, concurrency)

	for i, example := range cleaned {
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := storage.VectorUpsertExample(egCtx, example, i); err != nil {
				return fmt.Errorf("failed to upsert example %d: %w", i, err)
			}

			logger.Debug("Inserted example", "index", i, "question", example.Question)

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	logger.Info("Inserted examples", "count", len(examples))

	return nil
}
