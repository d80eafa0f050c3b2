package sqlrag_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
)

type MockLLM struct {
	responses []string
	chatErr   error

	// For tracking interactions
	mu        sync.Mutex
	chatCalls [][]string
}

type MockStorage struct {
	matches  []sqlrag.ExampleMatch
	queryErr error

	upsertErr error

	// Track calls to methods
	mu        sync.Mutex
	queryKs   []int
	questions []string
	upserted  map[int]sqlrag.Example
}

type MockDatabase struct {
	result       string
	runErr       error
	tableInfo    string
	tableInfoErr error

	queries []string
}

type MockTracer struct {
	err     error
	records []sqlrag.TraceRecord
}

type MockHandler struct {
	prefix       sqlrag.PrefixData
	exampleCount int
	topK         int
}

func (m *MockLLM) Chat(_ context.Context, messages []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chatCalls = append(m.chatCalls, messages)
	if m.chatErr != nil {
		return "", m.chatErr
	}
	if len(m.chatCalls) > len(m.responses) {
		return "", nil
	}
	return m.responses[len(m.chatCalls)-1], nil
}

func (m *MockStorage) VectorQueryExamples(_ context.Context, question string, k int) ([]sqlrag.ExampleMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queryKs = append(m.queryKs, k)
	m.questions = append(m.questions, question)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.matches, nil
}

func (m *MockStorage) VectorUpsertExample(_ context.Context, example sqlrag.Example, orderIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.upserted == nil {
		m.upserted = make(map[int]sqlrag.Example)
	}
	m.upserted[orderIndex] = example
	return nil
}

func (m *MockDatabase) Run(_ context.Context, query string) (string, error) {
	m.queries = append(m.queries, query)
	if m.runErr != nil {
		return "", m.runErr
	}
	return m.result, nil
}

func (m *MockDatabase) TableInfo(context.Context) (string, error) {
	if m.tableInfoErr != nil {
		return "", m.tableInfoErr
	}
	return m.tableInfo, nil
}

func (m *MockTracer) Trace(_ context.Context, record sqlrag.TraceRecord) error {
	m.records = append(m.records, record)
	return m.err
}

func (m MockHandler) PrefixData() sqlrag.PrefixData {
	return m.prefix
}

func (m MockHandler) ExampleCount() int {
	return m.exampleCount
}

func (m MockHandler) TopK() int {
	return m.topK
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mysqlHandler() MockHandler {
	return MockHandler{
		prefix: sqlrag.PrefixData{
			Dialect:         "MySQL",
			ColumnQuote:     "`",
			ColumnQuoteName: "backticks",
			DateFunction:    "CURDATE()",
		},
		exampleCount: 2,
		topK:         5,
	}
}

const tShirtsTableInfo = "CREATE TABLE t_shirts (\n\tt_shirt_id int NOT NULL,\n\tbrand enum('Van Huesen','Levi','Nike','Adidas') NOT NULL,\n" +
	"\tcolor enum('Red','Blue','Black','White') NOT NULL,\n\tsize enum('XS','S','M','L','XL') NOT NULL,\n" +
	"\tprice int,\n\tstock_quantity int NOT NULL\n)"

func inventoryExamples() []sqlrag.Example {
	return []sqlrag.Example{
		{
			Question:  "How many t-shirts do we have left for Nike in XS size and white color?",
			SQLQuery:  "SELECT sum(stock_quantity) FROM t_shirts WHERE brand = 'Nike' AND color = 'White' AND size = 'XS'",
			SQLResult: "[(91,)]",
			Answer:    "91",
		},
		{
			Question:  "How many white color Levi's shirt I have?",
			SQLQuery:  "SELECT sum(stock_quantity) FROM t_shirts WHERE brand = 'Levi' AND color = 'White'",
			SQLResult: "[(290,)]",
			Answer:    "290",
		},
	}
}
