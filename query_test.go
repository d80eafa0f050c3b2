package sqlrag_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
)

const nikeQuestion = "How many white color Nike T-shirts do we have?"

func nikeFixtures() (*MockStorage, *MockDatabase, *MockLLM) {
	examples := inventoryExamples()
	storage := &MockStorage{matches: []sqlrag.ExampleMatch{
		{Example: examples[1], Similarity: 0.82, OrderIndex: 1},
		{Example: examples[0], Similarity: 0.91, OrderIndex: 0},
	}}
	db := &MockDatabase{result: "[(312,)]", tableInfo: tShirtsTableInfo}
	llm := &MockLLM{responses: []string{
		"SQLQuery: SELECT SUM(`stock_quantity`) FROM t_shirts WHERE `brand` = 'Nike' AND `color` = 'White'",
		"Answer: We have 312 white Nike T-shirts in stock.",
	}}
	return storage, db, llm
}

func TestQuery(t *testing.T) {
	storage, db, llm := nikeFixtures()
	tracer := &MockTracer{}

	req := sqlrag.QueryRequest{Question: "  " + nikeQuestion + "\n", ProjectName: "retail_industry"}
	result, err := sqlrag.Query(context.Background(), req, mysqlHandler(), storage, db, llm, tracer, discardLogger())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.FinalAnswer != "We have 312 white Nike T-shirts in stock." {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
	if result.SQLExecutionResult != "[(312,)]" {
		t.Errorf("SQLExecutionResult = %q", result.SQLExecutionResult)
	}
	if !strings.Contains(result.GeneratedSQL, "`brand` = 'Nike'") {
		t.Errorf("GeneratedSQL = %q", result.GeneratedSQL)
	}

	if len(storage.questions) != 1 || storage.questions[0] != nikeQuestion {
		t.Errorf("Expected the cleaned question to be embedded, got %q", storage.questions)
	}
	if storage.queryKs[0] != 2 {
		t.Errorf("Expected k=2, got %d", storage.queryKs[0])
	}

	prompt := llm.chatCalls[0][0]
	first := strings.Index(prompt, inventoryExamples()[0].Question)
	second := strings.Index(prompt, inventoryExamples()[1].Question)
	if first < 0 || second < 0 || first > second {
		t.Errorf("Examples not rendered most similar first: first=%d second=%d", first, second)
	}
	if !strings.Contains(prompt, tShirtsTableInfo) {
		t.Errorf("Prompt doesn't contain the table info")
	}
	if !strings.HasSuffix(prompt, "Question: "+nikeQuestion+"\n") {
		t.Errorf("Prompt doesn't end with the question")
	}

	if len(tracer.records) != 1 {
		t.Fatalf("Expected 1 trace record, got %d", len(tracer.records))
	}
	record := tracer.records[0]
	if record.Name != sqlrag.TraceName || record.ID == "" {
		t.Errorf("Unexpected record identity: %+v", record)
	}
	if record.ProjectName != "retail_industry" {
		t.Errorf("ProjectName = %q, want retail_industry", record.ProjectName)
	}
	if record.Inputs["question"] != nikeQuestion || record.Inputs["prompt"] != prompt {
		t.Errorf("Unexpected record inputs: %v", record.Inputs)
	}
	if record.Outputs["answer"] != result.FinalAnswer || record.Outputs["sql"] != result.GeneratedSQL {
		t.Errorf("Unexpected record outputs: %v", record.Outputs)
	}
	if record.Error != "" {
		t.Errorf("Unexpected record error: %s", record.Error)
	}
	if record.PromptTokens <= 0 {
		t.Errorf("Expected prompt tokens to be counted, got %d", record.PromptTokens)
	}
	if record.EndTime.Before(record.StartTime) {
		t.Errorf("Record ends before it starts")
	}
}

func TestQuery_TracingFailureDoesNotChangeAnswer(t *testing.T) {
	storage, db, llm := nikeFixtures()
	expected, err := sqlrag.Query(context.Background(), sqlrag.QueryRequest{Question: nikeQuestion},
		mysqlHandler(), storage, db, llm, nil, discardLogger())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	storage, db, llm = nikeFixtures()
	tracer := &MockTracer{err: errors.New("langsmith: 401 unauthorized")}
	result, err := sqlrag.Query(context.Background(), sqlrag.QueryRequest{Question: nikeQuestion},
		mysqlHandler(), storage, db, llm, tracer, discardLogger())
	if err != nil {
		t.Fatalf("Tracing failure leaked into the result: %v", err)
	}
	if result != expected {
		t.Errorf("Result with failing tracer = %+v, want %+v", result, expected)
	}
	if len(tracer.records) != 1 {
		t.Errorf("Expected the tracer to be called once, got %d", len(tracer.records))
	}
}

func TestQuery_Failures(t *testing.T) {
	dbErr := errors.New("Error 1054: Unknown column 'colour'")

	tests := []struct {
		name        string
		question    string
		setup       func(*MockStorage, *MockDatabase, *MockLLM)
		expectedErr error
		expectedLLM int
	}{
		{
			name:        "Empty question",
			question:    "   ",
			expectedErr: sqlrag.ErrEmptyQuestion,
		},
		{
			name:     "Embedding failure",
			question: nikeQuestion,
			setup: func(s *MockStorage, _ *MockDatabase, _ *MockLLM) {
				s.queryErr = fmt.Errorf("%w: timeout", sqlrag.ErrEmbeddingFailure)
			},
			expectedErr: sqlrag.ErrEmbeddingFailure,
		},
		{
			name:     "Index unavailable",
			question: nikeQuestion,
			setup: func(s *MockStorage, _ *MockDatabase, _ *MockLLM) {
				s.queryErr = errors.New("persist directory is corrupted")
			},
			expectedErr: sqlrag.ErrIndexUnavailable,
		},
		{
			name:     "Table info failure",
			question: nikeQuestion,
			setup: func(_ *MockStorage, db *MockDatabase, _ *MockLLM) {
				db.tableInfoErr = errors.New("connection refused")
			},
			expectedErr: sqlrag.ErrSQLExecution,
		},
		{
			name:     "Generated SQL rejected",
			question: nikeQuestion,
			setup: func(_ *MockStorage, db *MockDatabase, _ *MockLLM) {
				db.runErr = dbErr
			},
			expectedErr: sqlrag.ErrSQLExecution,
			expectedLLM: 1,
		},
		{
			name:     "Malformed generation",
			question: nikeQuestion,
			setup: func(_ *MockStorage, _ *MockDatabase, llm *MockLLM) {
				llm.responses = []string{"SELECT * FROM t_shirts"}
			},
			expectedErr: sqlrag.ErrGenerationParse,
			expectedLLM: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, db, llm := nikeFixtures()
			if tt.setup != nil {
				tt.setup(storage, db, llm)
			}
			tracer := &MockTracer{}

			result, err := sqlrag.Query(context.Background(), sqlrag.QueryRequest{Question: tt.question},
				mysqlHandler(), storage, db, llm, tracer, discardLogger())
			if !errors.Is(err, tt.expectedErr) {
				t.Fatalf("Expected error %v, got %v", tt.expectedErr, err)
			}
			if result.FinalAnswer != "" {
				t.Errorf("Expected no answer, got %q", result.FinalAnswer)
			}
			if len(llm.chatCalls) != tt.expectedLLM {
				t.Errorf("Expected %d LLM calls, got %d", tt.expectedLLM, len(llm.chatCalls))
			}

			if len(tracer.records) != 1 {
				t.Fatalf("Expected failures to be traced, got %d records", len(tracer.records))
			}
			if tracer.records[0].Error == "" || tracer.records[0].Outputs != nil {
				t.Errorf("Expected an error record without outputs, got %+v", tracer.records[0])
			}
		})
	}
}

func TestQuery_CanceledContext(t *testing.T) {
	storage, db, _ := nikeFixtures()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &cancelAwareLLM{}
	_, err := sqlrag.Query(ctx, sqlrag.QueryRequest{Question: nikeQuestion},
		mysqlHandler(), storage, db, llm, nil, discardLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

type cancelAwareLLM struct{}

func (cancelAwareLLM) Chat(ctx context.Context, _ []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "SQLQuery: SELECT 1", nil
}
