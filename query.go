package sqlrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MegaGrindStone/go-sql-rag/internal"
	"github.com/MegaGrindStone/go-sql-rag/internal/metrics"
	"github.com/google/uuid"
)

// TraceName is the name given to the trace records of Query.
const TraceName = "SQLDatabaseChain"

const traceTimeout = 10 * time.Second

// ErrEmptyQuestion is returned by Query when the question has no content.
var ErrEmptyQuestion = errors.New("question is empty")

// Query answers a question with the few-shot text-to-SQL pipeline.
//
// It selects the examples most similar to the question from the storage, describes the
// database tables, assembles the prompt and runs the chain against the database. The tracer,
// when not nil, receives a record of the invocation; its failures are logged and never change
// the result.
func Query(
	ctx context.Context,
	req QueryRequest,
	handler QueryHandler,
	storage ExampleStorage,
	db Database,
	llm LLM,
	tracer Tracer,
	logger *slog.Logger,
) (ChainResult, error) {
	logger = logger.With(
		slog.String("package", "sqlrag"),
		slog.String("function", "Query"),
	)

	question := cleanContent(req.Question)

	record := TraceRecord{
		ID:          uuid.New().String(),
		ProjectName: req.ProjectName,
		Name:        TraceName,
		StartTime:   time.Now(),
		Inputs:      map[string]any{"question": question},
	}

	result, prompt, err := query(ctx, question, handler, storage, db, llm, logger)
	metrics.ObserveQuery(err)

	record.EndTime = time.Now()
	if prompt != "" {
		record.Inputs["prompt"] = prompt
		if tokens, tErr := internal.CountTokens(prompt); tErr == nil {
			record.PromptTokens = tokens
		} else {
			logger.Debug("Failed to count prompt tokens", "error", tErr)
		}
	}
	if err != nil {
		record.Error = err.Error()
	} else {
		record.Outputs = map[string]any{
			"sql":    result.GeneratedSQL,
			"result": result.SQLExecutionResult,
			"answer": result.FinalAnswer,
		}
	}
	recordTrace(ctx, tracer, record, logger)

	if err != nil {
		return ChainResult{}, err
	}

	logger.Info("Answered question", "duration", record.EndTime.Sub(record.StartTime))

	return result, nil
}

func query(
	ctx context.Context,
	question string,
	handler QueryHandler,
	storage ExampleStorage,
	db Database,
	llm LLM,
	logger *slog.Logger,
) (ChainResult, string, error) {
	if question == "" {
		return ChainResult{}, "", ErrEmptyQuestion
	}

	logger.Info("Selecting examples", "question", question, "k", handler.ExampleCount())

	start := time.Now()
	examples, err := SelectExamples(ctx, question, handler.ExampleCount(), storage)
	metrics.ObserveStage(metrics.StageSelect, start, err)
	if err != nil {
		return ChainResult{}, "", fmt.Errorf("failed to select examples: %w", err)
	}

	start = time.Now()
	tableInfo, err := db.TableInfo(ctx)
	metrics.ObserveStage(metrics.StageSchema, start, err)
	if err != nil {
		return ChainResult{}, "", fmt.Errorf("failed to describe tables: %w", wrapErr(ErrSQLExecution, err))
	}

	start = time.Now()
	prompt, err := AssemblePrompt(PromptData{
		Prefix:    handler.PrefixData(),
		Examples:  examples,
		Question:  question,
		TableInfo: tableInfo,
		TopK:      handler.TopK(),
	})
	metrics.ObserveStage(metrics.StageAssemble, start, err)
	if err != nil {
		return ChainResult{}, "", fmt.Errorf("failed to assemble prompt: %w", err)
	}

	logger.Debug("Assembled prompt", "examples", len(examples), "prompt", prompt)

	result, err := RunChain(ctx, prompt, db, llm, logger)
	if err != nil {
		return ChainResult{}, prompt, err
	}

	return result, prompt, nil
}

func recordTrace(ctx context.Context, tracer Tracer, record TraceRecord, logger *slog.Logger) {
	if tracer == nil {
		return
	}

	traceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traceTimeout)
	defer cancel()

	if err := tracer.Trace(traceCtx, record); err != nil {
		metrics.TraceDropped()
		logger.Warn("Failed to record trace", "id", record.ID, "error", wrapErr(ErrTracingFailure, err))
	}
}
