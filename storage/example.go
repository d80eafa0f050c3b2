package storage

import (
	"fmt"
	"strconv"
	"strings"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
)

const (
	metaQuestion   = "question"
	metaSQLQuery   = "sql_query"
	metaSQLResult  = "sql_result"
	metaAnswer     = "answer"
	metaOrderIndex = "order_index"
)

// exampleText is the text embedded for an example: its field values joined in grammar order.
func exampleText(example sqlrag.Example) string {
	return strings.Join([]string{
		example.Question,
		example.SQLQuery,
		example.SQLResult,
		example.Answer,
	}, " ")
}

func exampleID(orderIndex int) string {
	return fmt.Sprintf("example-%d", orderIndex)
}

func exampleMetadata(example sqlrag.Example, orderIndex int) map[string]string {
	return map[string]string{
		metaQuestion:   example.Question,
		metaSQLQuery:   example.SQLQuery,
		metaSQLResult:  example.SQLResult,
		metaAnswer:     example.Answer,
		metaOrderIndex: strconv.Itoa(orderIndex),
	}
}

func exampleFromMetadata(meta map[string]string) (sqlrag.Example, int, error) {
	question, ok := meta[metaQuestion]
	if !ok {
		return sqlrag.Example{}, 0, fmt.Errorf("question not found in metadata")
	}
	orderIndex, err := strconv.Atoi(meta[metaOrderIndex])
	if err != nil {
		return sqlrag.Example{}, 0, fmt.Errorf("invalid order index in metadata: %w", err)
	}

	return sqlrag.Example{
		Question:  question,
		SQLQuery:  meta[metaSQLQuery],
		SQLResult: meta[metaSQLResult],
		Answer:    meta[metaAnswer],
	}, orderIndex, nil
}
