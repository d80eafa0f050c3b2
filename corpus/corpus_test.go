package corpus_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/MegaGrindStone/go-sql-rag/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_File(t *testing.T) {
	examples, err := corpus.Load(filepath.Join("testdata", "few_shots.yaml"))
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, "How many t-shirts do we have left for Nike in XS size and white color?", examples[0].Question)
	assert.Equal(t,
		"SELECT sum(stock_quantity) FROM t_shirts WHERE brand = 'Nike' AND color = 'White' AND size = 'XS'",
		examples[0].SQLQuery)
	assert.Equal(t, "[(91,)]", examples[0].SQLResult)
	assert.Equal(t, "[(22292,)]", examples[1].SQLResult)
}

func TestLoad_Directory(t *testing.T) {
	examples, err := corpus.Load(filepath.Join("testdata", "dir"))
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, "How many white color Levi's shirt I have?", examples[0].Question)
	assert.Contains(t, examples[1].SQLQuery, "LEFT JOIN discounts")
}

func TestLoad_Errors(t *testing.T) {
	_, err := corpus.Load(filepath.Join("testdata", "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = corpus.Load(filepath.Join("testdata", "invalid.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no SQL query")

	_, err = corpus.Load(filepath.Join("testdata", "unknown_field.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing corpus file")

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("[]\n"), 0o600))
	_, err = corpus.Load(empty)
	assert.True(t, errors.Is(err, corpus.ErrEmptyCorpus))
}

func TestHash(t *testing.T) {
	a := []sqlrag.Example{{Question: "q1", SQLQuery: "s1"}, {Question: "q2", SQLQuery: "s2"}}
	b := []sqlrag.Example{{Question: "q2", SQLQuery: "s2"}, {Question: "q1", SQLQuery: "s1"}}
	c := []sqlrag.Example{{Question: "q1s", SQLQuery: "1"}, {Question: "q2", SQLQuery: "s2"}}

	assert.Equal(t, corpus.Hash(a), corpus.Hash(a))
	assert.Len(t, corpus.Hash(a), 16)
	assert.NotEqual(t, corpus.Hash(a), corpus.Hash(b))
	assert.NotEqual(t, corpus.Hash(a), corpus.Hash(c))
}
