package handler

import (
	sqlrag "github.com/MegaGrindStone/go-sql-rag"
)

// Default implements the QueryHandler interface.
// It describes the SQL dialect the model writes and how many examples and result rows the
// prompt asks for, falling back to MySQL with sensible defaults for every zero field.
type Default struct {
	Dialect         string
	ColumnQuote     string
	ColumnQuoteName string
	DateFunction    string

	// NumExamples is the number of few-shot examples selected for a question. A negative value
	// selects none.
	NumExamples int
	// ResultLimit is the row limit the model is told to apply when the question doesn't name one.
	ResultLimit int
}

const (
	defaultNumExamples = 2
	defaultResultLimit = 5
)

// PrefixData returns the dialect data rendered into the instructional prefix.
func (d Default) PrefixData() sqlrag.PrefixData {
	data := sqlrag.PrefixData{
		Dialect:         d.Dialect,
		ColumnQuote:     d.ColumnQuote,
		ColumnQuoteName: d.ColumnQuoteName,
		DateFunction:    d.DateFunction,
	}
	if data.Dialect == "" {
		data.Dialect = MySQL.Dialect
	}
	if data.ColumnQuote == "" {
		data.ColumnQuote = MySQL.ColumnQuote
	}
	if data.ColumnQuoteName == "" {
		data.ColumnQuoteName = MySQL.ColumnQuoteName
	}
	if data.DateFunction == "" {
		data.DateFunction = MySQL.DateFunction
	}

	return data
}

// ExampleCount returns the number of few-shot examples to select.
func (d Default) ExampleCount() int {
	switch {
	case d.NumExamples < 0:
		return 0
	case d.NumExamples == 0:
		return defaultNumExamples
	}
	return d.NumExamples
}

// TopK returns the default row limit of the generated queries.
func (d Default) TopK() int {
	if d.ResultLimit <= 0 {
		return defaultResultLimit
	}
	return d.ResultLimit
}
