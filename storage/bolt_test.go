package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/MegaGrindStone/go-sql-rag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBolt(t *testing.T) storage.Bolt {
	t.Helper()

	b, err := storage.NewBolt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return b
}

func TestBolt_CorpusHash(t *testing.T) {
	b := newTestBolt(t)

	hash, err := b.CorpusHash()
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, b.SaveCorpusHash("abc123"))
	hash, err = b.CorpusHash()
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)

	require.NoError(t, b.SaveCorpusHash("def456"))
	hash, err = b.CorpusHash()
	require.NoError(t, err)
	assert.Equal(t, "def456", hash)
}

func TestBolt_Traces(t *testing.T) {
	b := newTestBolt(t)

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		err := b.Trace(context.Background(), sqlrag.TraceRecord{
			ID:        id,
			Name:      sqlrag.TraceName,
			Inputs:    map[string]any{"question": "q " + id},
			StartTime: start.Add(time.Duration(i) * time.Second),
			EndTime:   start.Add(time.Duration(i+1) * time.Second),
		})
		require.NoError(t, err)
	}

	records, err := b.Traces(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].ID)
	assert.Equal(t, "second", records[1].ID)
	assert.Equal(t, "q third", records[0].Inputs["question"])
	assert.True(t, records[0].StartTime.Equal(start.Add(2*time.Second)))
}

func TestBolt_TraceCanceledContext(t *testing.T) {
	b := newTestBolt(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Trace(ctx, sqlrag.TraceRecord{ID: "x"})
	require.ErrorIs(t, err, context.Canceled)

	records, err := b.Traces(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
