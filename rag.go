package sqlrag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// LLM defines the interface for language model operations.
type LLM interface {
	// Chat sends messages to the LLM and returns the response.
	// A message with an even index is guaranteed to be sent by the user, while the odd index is
	// sent by the assistant.
	Chat(ctx context.Context, messages []string) (string, error)
}

// ExampleStorage defines the interface for the similarity index holding the few-shot examples.
// It provides methods to query the nearest examples of a question and to store new examples.
type ExampleStorage interface {
	// VectorQueryExamples embeds the question and returns at most k stored examples nearest to it.
	// Implementations must wrap errors of the embedding call with ErrEmbeddingFailure, any other
	// error is treated as the index being unavailable.
	VectorQueryExamples(ctx context.Context, question string, k int) ([]ExampleMatch, error)
	// VectorUpsertExample stores an example together with its position in the corpus.
	VectorUpsertExample(ctx context.Context, example Example, orderIndex int) error
}

// Database defines the interface for the relational database the generated SQL runs against.
type Database interface {
	// Run executes the query and renders its result as text.
	Run(ctx context.Context, query string) (string, error)
	// TableInfo describes the tables available to the model, including sample rows.
	TableInfo(ctx context.Context) (string, error)
}

// Tracer records an invocation of the pipeline for observability.
// A failing Tracer never fails the request it observes.
type Tracer interface {
	Trace(ctx context.Context, record TraceRecord) error
}

// QueryHandler provides the per-deployment settings of the query pipeline.
type QueryHandler interface {
	// PrefixData returns the dialect-specific data rendered into the instructional prefix.
	PrefixData() PrefixData
	// ExampleCount returns the number of few-shot examples to select for each question.
	ExampleCount() int
	// TopK returns the default number of rows the model is told to limit its queries to.
	TopK() int
}

// Example is a worked question with the SQL that answers it, the result of that SQL and the
// final answer. Examples are read-only once stored.
type Example struct {
	Question  string `yaml:"Question"`
	SQLQuery  string `yaml:"SQLQuery"`
	SQLResult string `yaml:"SQLResult"`
	Answer    string `yaml:"Answer"`
}

// ExampleMatch is an Example returned from the similarity index with its similarity to the
// queried question and its insertion order in the corpus.
type ExampleMatch struct {
	Example    Example
	Similarity float32
	OrderIndex int
}

// QueryRequest is a single question submitted by the user.
type QueryRequest struct {
	Question string
	// ProjectName groups the trace of this request. Empty leaves the choice to the Tracer.
	ProjectName string
}

// ChainResult holds the outputs of every step of the chain. Only FinalAnswer is meant to be
// shown to the user.
type ChainResult struct {
	GeneratedSQL       string
	SQLExecutionResult string
	FinalAnswer        string
}

// TraceRecord describes one pipeline invocation for a Tracer.
type TraceRecord struct {
	ID           string         `json:"id"`
	ProjectName  string         `json:"project_name,omitempty"`
	Name         string         `json:"name"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Error        string         `json:"error,omitempty"`
	PromptTokens int            `json:"prompt_tokens,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
}

var (
	// ErrEmbeddingFailure is returned when the embedding service fails to embed the question.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrIndexUnavailable is returned when the similarity index cannot be queried.
	ErrIndexUnavailable = errors.New("similarity index unavailable")
	// ErrGenerationParse is returned when a model response doesn't follow the expected grammar.
	ErrGenerationParse = errors.New("generation parse error")
	// ErrSQLExecution is returned when the database rejects the generated SQL.
	ErrSQLExecution = errors.New("sql execution error")
	// ErrTracingFailure marks a failure of a Tracer. It is logged, never returned to the caller.
	ErrTracingFailure = errors.New("tracing failure")
)

func cleanContent(content string) string {
	// Removes spaces and null characters.
	str := strings.TrimSpace(content)
	return strings.ReplaceAll(str, "\x00", "")
}

func mustTemplate(name, templ string) *template.Template {
	return template.Must(template.New(name).Funcs(template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
	}).Parse(templ))
}

func executeTemplate(tmpl *template.Template, data any) (string, error) {
	buf := strings.Builder{}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func wrapErr(sentinel error, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
