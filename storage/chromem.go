package storage

import (
	"context"
	"fmt"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/philippgille/chromem-go"
)

// Chromem provides a vector storage implementation using ChromeM database.
// It stores the few-shot examples in a single collection and finds the ones most similar to a
// question.
type Chromem struct {
	db            *chromem.DB
	embeddingFunc EmbeddingFunc

	ExamplesColl *chromem.Collection
}

const (
	chromemExamplesCollectionName = "examples"

	chromemTimeout = 30 * time.Second
)

// NewChromem creates a ChromeM storage persisted under dbPath. Documents already stored there
// are loaded, so a corpus only has to be inserted once. Vectors returned by embeddingFunc are
// normalized before they are stored or queried.
func NewChromem(dbPath string, embeddingFunc EmbeddingFunc) (Chromem, error) {
	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return Chromem{}, fmt.Errorf("failed to create chromem db: %w", err)
	}

	return newChromem(db, normalized(embeddingFunc))
}

// NewChromemInMemory creates a ChromeM storage that lives only in memory.
func NewChromemInMemory(embeddingFunc EmbeddingFunc) (Chromem, error) {
	return newChromem(chromem.NewDB(), normalized(embeddingFunc))
}

func newChromem(db *chromem.DB, embeddingFunc EmbeddingFunc) (Chromem, error) {
	coll, err := db.GetOrCreateCollection(chromemExamplesCollectionName, nil, chromem.EmbeddingFunc(embeddingFunc))
	if err != nil {
		return Chromem{}, fmt.Errorf("failed to create examples collection: %w", err)
	}

	return Chromem{
		db:            db,
		embeddingFunc: embeddingFunc,
		ExamplesColl:  coll,
	}, nil
}

// VectorQueryExamples embeds the question and returns at most k stored examples nearest to it.
// An embedding failure is wrapped with sqlrag.ErrEmbeddingFailure.
func (c Chromem) VectorQueryExamples(ctx context.Context, question string, k int) ([]sqlrag.ExampleMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, chromemTimeout)
	defer cancel()

	count := c.ExamplesColl.Count()
	if k > count {
		k = count
	}
	if k <= 0 {
		return []sqlrag.ExampleMatch{}, nil
	}

	vector, err := c.embeddingFunc(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed question: %w", sqlrag.ErrEmbeddingFailure, err)
	}

	vecRes, err := c.ExamplesColl.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}

	res := make([]sqlrag.ExampleMatch, len(vecRes))
	for i, vec := range vecRes {
		example, orderIndex, err := exampleFromMetadata(vec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("invalid example %s: %w", vec.ID, err)
		}
		res[i] = sqlrag.ExampleMatch{
			Example:    example,
			Similarity: vec.Similarity,
			OrderIndex: orderIndex,
		}
	}

	return res, nil
}

// VectorUpsertExample embeds the example and stores it. An example inserted again at the same
// order index replaces the previous one.
func (c Chromem) VectorUpsertExample(ctx context.Context, example sqlrag.Example, orderIndex int) error {
	doc := chromem.Document{
		ID:       exampleID(orderIndex),
		Content:  exampleText(example),
		Metadata: exampleMetadata(example, orderIndex),
	}

	ctx, cancel := context.WithTimeout(ctx, chromemTimeout)
	defer cancel()

	if err := c.ExamplesColl.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add example: %w", err)
	}

	return nil
}

// Count returns the number of stored examples.
func (c Chromem) Count() int {
	return c.ExamplesColl.Count()
}

// Reset removes every stored example. The returned Chromem must be used afterwards.
func (c Chromem) Reset() (Chromem, error) {
	if err := c.db.DeleteCollection(chromemExamplesCollectionName); err != nil {
		return Chromem{}, fmt.Errorf("failed to delete examples collection: %w", err)
	}

	return newChromem(c.db, c.embeddingFunc)
}
