package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/MegaGrindStone/go-sql-rag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEmbed = errors.New("embedding service down")

// keywordEmbedding maps a text onto a few keyword axes so similarity is predictable.
func keywordEmbedding(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "fail") {
		return nil, errEmbed
	}

	lower := strings.ToLower(text)
	vector := []float32{0.01, 0.01, 0.01}
	if strings.Contains(lower, "stock") || strings.Contains(lower, "inventory") {
		vector[0] = 1
	}
	if strings.Contains(lower, "discount") {
		vector[1] = 1
	}
	if strings.Contains(lower, "revenue") {
		vector[2] = 1
	}
	return vector, nil
}

func testExamples() []sqlrag.Example {
	return []sqlrag.Example{
		{
			Question:  "How many t-shirts do we have left for Nike in XS size and white color?",
			SQLQuery:  "SELECT sum(stock_quantity) FROM t_shirts WHERE brand = 'Nike' AND color = 'White' AND size = 'XS'",
			SQLResult: "[(91,)]",
			Answer:    "91 in stock",
		},
		{
			Question:  "How much is the total price of the inventory for all S-size t-shirts?",
			SQLQuery:  "SELECT SUM(price*stock_quantity) FROM t_shirts WHERE size = 'S'",
			SQLResult: "[(22292,)]",
			Answer:    "22292",
		},
		{
			Question:  "Which brands have a discount on their t-shirts?",
			SQLQuery:  "SELECT DISTINCT t.brand FROM t_shirts t JOIN discounts d ON t.t_shirt_id = d.t_shirt_id",
			SQLResult: "[('Levi',), ('Nike',)]",
			Answer:    "Levi and Nike",
		},
	}
}

func newSeededChromem(t *testing.T) storage.Chromem {
	t.Helper()

	c, err := storage.NewChromemInMemory(keywordEmbedding)
	require.NoError(t, err)

	for i, example := range testExamples() {
		require.NoError(t, c.VectorUpsertExample(context.Background(), example, i))
	}
	return c
}

func TestChromem_VectorQueryExamples(t *testing.T) {
	c := newSeededChromem(t)

	matches, err := c.VectorQueryExamples(context.Background(), "How many white Nike t-shirts are in stock?", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.GreaterOrEqual(t, matches[0].Similarity, matches[1].Similarity)

	// The two inventory examples share the same embedding.
	byOrder := map[int]sqlrag.Example{}
	for _, match := range matches {
		byOrder[match.OrderIndex] = match.Example
	}
	require.Len(t, byOrder, 2)
	assert.Equal(t, testExamples()[0], byOrder[0])
	assert.Equal(t, testExamples()[1], byOrder[1])
}

func TestChromem_VectorQueryExamplesClampsK(t *testing.T) {
	c := newSeededChromem(t)

	matches, err := c.VectorQueryExamples(context.Background(), "discount", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
	assert.Equal(t, 2, matches[0].OrderIndex)
}

func TestChromem_VectorQueryExamplesEmpty(t *testing.T) {
	c, err := storage.NewChromemInMemory(keywordEmbedding)
	require.NoError(t, err)

	matches, err := c.VectorQueryExamples(context.Background(), "anything", 2)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromem_VectorQueryExamplesEmbeddingFailure(t *testing.T) {
	c := newSeededChromem(t)

	_, err := c.VectorQueryExamples(context.Background(), "this will fail", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, sqlrag.ErrEmbeddingFailure)
	assert.ErrorIs(t, err, errEmbed)
}

func TestChromem_UpsertReplacesSameOrderIndex(t *testing.T) {
	c := newSeededChromem(t)
	require.Equal(t, 3, c.Count())

	replacement := sqlrag.Example{Question: "What is the revenue?", SQLQuery: "SELECT 1", Answer: "1"}
	require.NoError(t, c.VectorUpsertExample(context.Background(), replacement, 1))
	assert.Equal(t, 3, c.Count())

	matches, err := c.VectorQueryExamples(context.Background(), "revenue", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, replacement, matches[0].Example)
	assert.Equal(t, 1, matches[0].OrderIndex)
}

func TestChromem_Reset(t *testing.T) {
	c := newSeededChromem(t)

	c, err := c.Reset()
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count())

	require.NoError(t, c.VectorUpsertExample(context.Background(), testExamples()[2], 0))
	assert.Equal(t, 1, c.Count())
}

func TestChromem_Persistent(t *testing.T) {
	dir := t.TempDir()

	c, err := storage.NewChromem(dir, keywordEmbedding)
	require.NoError(t, err)
	require.NoError(t, c.VectorUpsertExample(context.Background(), testExamples()[0], 0))

	reopened, err := storage.NewChromem(dir, keywordEmbedding)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}

func TestChromem_UnnormalizedEmbeddings(t *testing.T) {
	// Axis-aligned vectors of different lengths: a raw dot product would rank "longer" first.
	embed := func(_ context.Context, text string) ([]float32, error) {
		switch {
		case strings.Contains(text, "exact"):
			return []float32{1, 0}, nil
		case strings.Contains(text, "longer"):
			return []float32{3, 4}, nil
		}
		return []float32{2, 0}, nil
	}

	c, err := storage.NewChromemInMemory(embed)
	require.NoError(t, err)

	exact := sqlrag.Example{Question: "exact", SQLQuery: "SELECT 1"}
	longer := sqlrag.Example{Question: "longer", SQLQuery: "SELECT 2"}
	require.NoError(t, c.VectorUpsertExample(context.Background(), exact, 0))
	require.NoError(t, c.VectorUpsertExample(context.Background(), longer, 1))

	matches, err := c.VectorQueryExamples(context.Background(), "question", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, exact, matches[0].Example)
	assert.InDelta(t, 1.0, matches[0].Similarity, 0.001)
	assert.Equal(t, longer, matches[1].Example)
	assert.InDelta(t, 0.6, matches[1].Similarity, 0.001)

	selected, err := sqlrag.SelectExamples(context.Background(), "question", 1, c)
	require.NoError(t, err)
	assert.Equal(t, []sqlrag.Example{exact}, selected)
}
