package sqlrag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MegaGrindStone/go-sql-rag/internal/metrics"
)

// RunChain runs the generate, execute and synthesize steps for an assembled prompt.
//
// The model is first asked for the SQLQuery field, which is executed against the database. The
// prompt is then extended with the query and its result, and the model is asked for the Answer
// field. A failure at any step fails the whole chain, nothing is retried and no partial result
// is returned.
func RunChain(ctx context.Context, prompt string, db Database, llm LLM, logger *slog.Logger) (ChainResult, error) {
	logger = logger.With(
		slog.String("package", "sqlrag"),
		slog.String("function", "RunChain"),
	)

	start := time.Now()
	sqlQuery, err := generateSQL(ctx, prompt, llm)
	metrics.ObserveStage(metrics.StageGenerate, start, err)
	if err != nil {
		return ChainResult{}, err
	}

	logger.Info("Generated SQL", "sql", sqlQuery, "duration", time.Since(start))

	start = time.Now()
	sqlResult, err := db.Run(ctx, sqlQuery)
	metrics.ObserveStage(metrics.StageExecute, start, err)
	if err != nil {
		return ChainResult{}, wrapErr(ErrSQLExecution, err)
	}

	logger.Info("Executed SQL", "duration", time.Since(start))
	logger.Debug("SQL result", "result", sqlResult)

	start = time.Now()
	answer, err := synthesizeAnswer(ctx, prompt, sqlQuery, sqlResult, llm)
	metrics.ObserveStage(metrics.StageAnswer, start, err)
	if err != nil {
		return ChainResult{}, err
	}

	logger.Info("Synthesized answer", "duration", time.Since(start))

	return ChainResult{
		GeneratedSQL:       sqlQuery,
		SQLExecutionResult: sqlResult,
		FinalAnswer:        answer,
	}, nil
}

func generateSQL(ctx context.Context, prompt string, llm LLM) (string, error) {
	response, err := llm.Chat(ctx, []string{prompt})
	if err != nil {
		return "", fmt.Errorf("failed to call LLM for SQL: %w", err)
	}

	parsed, err := ParseResponse(response)
	if err != nil {
		return "", err
	}

	return parsed.Require(FieldSQLQuery)
}

func synthesizeAnswer(ctx context.Context, prompt, sqlQuery, sqlResult string, llm LLM) (string, error) {
	response, err := llm.Chat(ctx, []string{answerPrompt(prompt, sqlQuery, sqlResult)})
	if err != nil {
		return "", fmt.Errorf("failed to call LLM for answer: %w", err)
	}

	parsed, err := ParseResponse(response)
	if err != nil {
		return "", err
	}

	return parsed.Require(FieldAnswer)
}

func answerPrompt(prompt, sqlQuery, sqlResult string) string {
	return fmt.Sprintf("%s%s: %s\n%s: %s\n", prompt, FieldSQLQuery, sqlQuery, FieldSQLResult, sqlResult)
}
