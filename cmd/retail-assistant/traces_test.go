package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/MegaGrindStone/go-sql-rag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceRecord(id, question, errMsg string, start time.Time) sqlrag.TraceRecord {
	return sqlrag.TraceRecord{
		ID:           id,
		Name:         sqlrag.TraceName,
		Inputs:       map[string]any{"question": question},
		Error:        errMsg,
		PromptTokens: 420,
		StartTime:    start,
		EndTime:      start.Add(1500 * time.Millisecond),
	}
}

func TestReadTraces_Local(t *testing.T) {
	cfg := config{StatePath: filepath.Join(t.TempDir(), "state.db")}

	state, err := storage.NewBolt(cfg.StatePath)
	require.NoError(t, err)
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, question := range []string{"first", "second", "third"} {
		record := traceRecord(question, question, "", start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, state.Trace(context.Background(), record))
	}
	require.NoError(t, state.Close())

	records, err := readTraces(context.Background(), cfg, traceSourceLocal, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].ID)
	assert.Equal(t, "second", records[1].ID)

	records, err = readTraces(context.Background(), cfg, traceSourceLocal, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadTraces_Errors(t *testing.T) {
	cfg := config{StatePath: filepath.Join(t.TempDir(), "state.db")}

	_, err := readTraces(context.Background(), cfg, traceSourceRedis, 5)
	assert.Error(t, err)

	_, err = readTraces(context.Background(), cfg, "kafka", 5)
	assert.Error(t, err)
}

func TestWriteTraces(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []sqlrag.TraceRecord{
		traceRecord("1", "How many white Nike T-shirts\ndo we have?", "", start),
		traceRecord("2", strings.Repeat("long question ", 10), "sql execution error: unknown column", start),
	}

	var buf bytes.Buffer
	require.NoError(t, writeTraces(&buf, records))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "QUESTION")
	assert.Contains(t, lines[1], "How many white Nike T-shirts do we have?")
	assert.Contains(t, lines[1], "1.5s")
	assert.Contains(t, lines[1], "420")
	assert.Contains(t, lines[1], "ok")
	assert.Contains(t, lines[2], "...")
	assert.Contains(t, lines[2], "error: sql execution error")

	buf.Reset()
	require.NoError(t, writeTraces(&buf, nil))
	assert.Equal(t, "No trace records.\n", buf.String())
}
