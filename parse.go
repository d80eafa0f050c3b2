package sqlrag

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Field is one of the four labelled fields of the response grammar.
type Field int

// Fields of the response grammar, in the order they must appear.
const (
	FieldQuestion Field = iota
	FieldSQLQuery
	FieldSQLResult
	FieldAnswer
)

var fieldLabels = [...]string{
	FieldQuestion:  "Question",
	FieldSQLQuery:  "SQLQuery",
	FieldSQLResult: "SQLResult",
	FieldAnswer:    "Answer",
}

// String returns the label of the field as written in the response.
func (f Field) String() string {
	if f < FieldQuestion || f > FieldAnswer {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldLabels[f]
}

// Parsed is a model response that follows the Question/SQLQuery/SQLResult/Answer grammar.
// Fields that were absent from the response are reported as such by Has.
type Parsed struct {
	Question  string
	SQLQuery  string
	SQLResult string
	Answer    string

	present [len(fieldLabels)]bool
}

// ParseError is returned when a response doesn't follow the grammar or lacks a required field.
// It wraps ErrGenerationParse.
type ParseError struct {
	Reason   string
	Response string
}

var thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrGenerationParse, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrGenerationParse
}

// Has reports whether the field was labelled in the response.
func (p Parsed) Has(f Field) bool {
	if f < FieldQuestion || f > FieldAnswer {
		return false
	}
	return p.present[f]
}

// Value returns the text of the field, empty when the field is absent.
func (p Parsed) Value(f Field) string {
	switch f {
	case FieldQuestion:
		return p.Question
	case FieldSQLQuery:
		return p.SQLQuery
	case FieldSQLResult:
		return p.SQLResult
	case FieldAnswer:
		return p.Answer
	}
	return ""
}

// Require returns the text of the field, or a *ParseError when the field is absent or empty.
func (p Parsed) Require(f Field) (string, error) {
	if !p.Has(f) {
		return "", &ParseError{Reason: fmt.Sprintf("missing %s field", f)}
	}
	value := p.Value(f)
	if value == "" {
		return "", &ParseError{Reason: fmt.Sprintf("empty %s field", f)}
	}
	return value, nil
}

// ParseResponse parses a model response into its labelled fields.
//
// Each field starts on its own line with its label followed by a colon and runs until the next
// label. Labels must appear in grammar order and at most once. Reasoning blocks enclosed in
// <think> tags and markdown code fence lines are ignored. A query wrapped in inline backticks,
// or in a fence opened on the label line, is unwrapped. Any other text before the first label
// is an error.
func ParseResponse(response string) (Parsed, error) {
	text := thinkTags.ReplaceAllString(response, "")

	var (
		parsed  Parsed
		values  [len(fieldLabels)]strings.Builder
		current Field = -1
	)

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}

		field, rest, ok := labelOf(trimmed)
		if ok {
			if field <= current {
				reason := fmt.Sprintf("%s field out of order", field)
				if parsed.present[field] {
					reason = fmt.Sprintf("duplicate %s field", field)
				}
				return Parsed{}, &ParseError{Reason: reason, Response: response}
			}
			current = field
			parsed.present[field] = true
			values[field].WriteString(rest)
			continue
		}

		if current < 0 {
			if trimmed == "" {
				continue
			}
			return Parsed{}, &ParseError{Reason: "text before the first field", Response: response}
		}
		values[current].WriteString("\n")
		values[current].WriteString(line)
	}

	if current < 0 {
		return Parsed{}, &ParseError{Reason: "no labelled field found", Response: response}
	}

	parsed.Question = strings.TrimSpace(values[FieldQuestion].String())
	parsed.SQLQuery = unquoteSQL(values[FieldSQLQuery].String())
	parsed.SQLResult = strings.TrimSpace(values[FieldSQLResult].String())
	parsed.Answer = strings.TrimSpace(values[FieldAnswer].String())

	return parsed, nil
}

func labelOf(line string) (Field, string, bool) {
	for i, label := range fieldLabels {
		if strings.HasPrefix(line, label+":") {
			return Field(i), strings.TrimPrefix(line, label+":"), true
		}
	}
	return -1, "", false
}

var sqlFenceTags = map[string]bool{
	"sql":        true,
	"mysql":      true,
	"postgres":   true,
	"postgresql": true,
	"duckdb":     true,
	"sqlite":     true,
}

func unquoteSQL(sql string) string {
	sql = strings.TrimSpace(sql)

	if strings.HasPrefix(sql, "```") {
		sql = strings.TrimPrefix(sql, "```")
		if i := strings.IndexFunc(sql, unicode.IsSpace); i > 0 && sqlFenceTags[strings.ToLower(sql[:i])] {
			sql = sql[i:]
		}
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), "```"))
	}

	if len(sql) > 1 && strings.HasPrefix(sql, "`") && strings.HasSuffix(sql, "`") {
		sql = strings.TrimSpace(sql[1 : len(sql)-1])
	}
	return sql
}
