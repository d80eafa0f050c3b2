package storage

import (
	"context"
	"fmt"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// Milvus provides a vector storage implementation using Milvus database.
// It keeps the few-shot examples in one collection, their fields stored next to the vector.
//
// The Close() method should be called when done to properly release resources.
type Milvus struct {
	client        *milvusclient.Client
	embeddingFunc EmbeddingFunc
	vectorDim     int
}

const milvusExamplesCollectionName = "examples"

var milvusOutputFields = []string{metaQuestion, metaSQLQuery, metaSQLResult, metaAnswer, metaOrderIndex}

// NewMilvus creates a new Milvus client with the provided parameters and makes sure the
// examples collection exists. vectorDim must match the dimension of embeddingFunc's vectors.
func NewMilvus(ctx context.Context, config *milvusclient.ClientConfig, vectorDim int,
	embeddingFunc EmbeddingFunc,
) (Milvus, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	c, err := milvusclient.New(ctx, config)
	if err != nil {
		return Milvus{}, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	m := Milvus{
		client:        c,
		embeddingFunc: embeddingFunc,
		vectorDim:     vectorDim,
	}

	if err := m.createExamplesCollection(ctx); err != nil {
		return Milvus{}, err
	}

	return m, nil
}

// VectorQueryExamples embeds the question and returns at most k stored examples nearest to it.
// An embedding failure is wrapped with sqlrag.ErrEmbeddingFailure.
func (m Milvus) VectorQueryExamples(ctx context.Context, question string, k int) ([]sqlrag.ExampleMatch, error) {
	if k <= 0 {
		return []sqlrag.ExampleMatch{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	vector, err := m.embeddingFunc(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed question: %w", sqlrag.ErrEmbeddingFailure, err)
	}
	vectors := []entity.Vector{entity.FloatVector(vector)}

	opt := milvusclient.
		NewSearchOption(milvusExamplesCollectionName, k, vectors).
		WithOutputFields(milvusOutputFields...)
	searchResult, err := m.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}

	results := make([]sqlrag.ExampleMatch, 0, k)
	for _, result := range searchResult {
		for i := 0; i < result.ResultCount; i++ {
			meta := make(map[string]string, len(milvusOutputFields))
			for _, field := range milvusOutputFields {
				value, err := milvusString(result, field, i)
				if err != nil {
					return nil, err
				}
				meta[field] = value
			}

			example, orderIndex, err := exampleFromMetadata(meta)
			if err != nil {
				return nil, err
			}

			var score float32
			if i < len(result.Scores) {
				score = result.Scores[i]
			}
			results = append(results, sqlrag.ExampleMatch{
				Example:    example,
				Similarity: score,
				OrderIndex: orderIndex,
			})
		}
	}

	return results, nil
}

// VectorUpsertExample embeds the example and upserts it, keyed by its order index.
func (m Milvus) VectorUpsertExample(ctx context.Context, example sqlrag.Example, orderIndex int) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Minute)
	defer cancel()

	vector, err := m.embeddingFunc(ctx, exampleText(example))
	if err != nil {
		return fmt.Errorf("%w: failed to embed example: %w", sqlrag.ErrEmbeddingFailure, err)
	}

	opt := milvusclient.NewColumnBasedInsertOption(milvusExamplesCollectionName).
		WithVarcharColumn("id", []string{exampleID(orderIndex)})
	for field, value := range exampleMetadata(example, orderIndex) {
		opt = opt.WithVarcharColumn(field, []string{value})
	}
	opt = opt.WithFloatVectorColumn("vector", m.vectorDim, [][]float32{vector})

	if _, err := m.client.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("failed to upsert example: %w", err)
	}

	return nil
}

// Reset drops the examples collection and creates it again empty.
func (m Milvus) Reset(ctx context.Context) error {
	if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(milvusExamplesCollectionName)); err != nil {
		return fmt.Errorf("failed to drop examples collection: %w", err)
	}
	return m.createExamplesCollection(ctx)
}

// Close closes the connection to Milvus.
func (m Milvus) Close(ctx context.Context) error {
	if m.client != nil {
		return m.client.Close(ctx)
	}
	return nil
}

func (m Milvus) createExamplesCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(milvusExamplesCollectionName))
	if err != nil {
		return fmt.Errorf("failed to check if examples collection exists: %w", err)
	}

	if has {
		return nil
	}

	err = m.client.CreateCollection(ctx,
		milvusclient.SimpleCreateCollectionOptions(milvusExamplesCollectionName, int64(m.vectorDim)).
			WithVarcharPK(true, 64))
	if err != nil {
		return fmt.Errorf("failed to create examples collection: %w", err)
	}

	return nil
}

func milvusString(result milvusclient.ResultSet, field string, i int) (string, error) {
	col := result.GetColumn(field)
	if col == nil {
		return "", fmt.Errorf("%s not found in result", field)
	}
	value, err := col.Get(i)
	if err != nil {
		return "", fmt.Errorf("failed to get %s from result: %w", field, err)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s not string", field)
	}
	return str, nil
}
