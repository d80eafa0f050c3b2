package sqlrag

import "strings"

// PrefixData contains the dialect-specific parts of the instructional prefix.
// It names the SQL dialect, how column names are quoted and which function
// returns the current date.
type PrefixData struct {
	Dialect         string
	ColumnQuote     string
	ColumnQuoteName string
	DateFunction    string
}

// PromptData contains everything rendered into the text-to-SQL prompt: the prefix data, the
// selected few-shot examples, the live question, the description of the tables and the
// default row limit.
type PromptData struct {
	Prefix    PrefixData
	Examples  []Example
	Question  string
	TableInfo string
	TopK      int
}

type prefixPromptData struct {
	PrefixData
	TopK int
}

// ResponseFormat is the four-field grammar every prompt ends with. RunChain relies on it to
// tell the SQL apart from the final answer.
const ResponseFormat = `Question: Question here
SQLQuery: SQL Query to run
SQLResult: Result of the SQLQuery
Answer: Final answer here. Use a chatting format to reply to the user`

const exampleSeparator = "\n\n"

//nolint:lll
const prefixPrompt = `You are a {{.Dialect}} expert. Given an input question, first create a syntactically correct {{.Dialect}} query to run, then look at the results of the query and return the answer to the input question.
Unless the user specifies in the question a specific number of examples to obtain, query for at most {{.TopK}} results using the LIMIT clause as per {{.Dialect}}. You can order the results to return the most informative data in the database.
Never query for all columns from a table. You must query only the columns that are needed to answer the question. Wrap each column name in {{.ColumnQuoteName}} ({{.ColumnQuote}}) to denote them as delimited identifiers.
Pay attention to use only the column names you can see in the tables below. Be careful to not query for columns that do not exist. Also, pay attention to which column is in which table.
Pay attention to use {{.DateFunction}} function to get the current date, if the question involves "today".

Here are some examples of questions with the query, its result and the answer:`

const examplePrompt = `Question: {{.Question}}
SQLQuery: {{.SQLQuery}}
SQLResult: {{.SQLResult}}
Answer: {{.Answer}}`

//nolint:lll
const suffixPrompt = `Use the following format:

` + ResponseFormat + `

Start every field on its own line with its label. First write only the SQLQuery field. The SQLResult will then be given to you, after which you write only the Answer field.

Only use the following tables:
{{.TableInfo}}

Question: {{.Question}}
`

var (
	prefixTemplate  = mustTemplate("prefix", prefixPrompt)
	exampleTemplate = mustTemplate("example", examplePrompt)
	suffixTemplate  = mustTemplate("suffix", suffixPrompt)
)

// AssemblePrompt renders the instructional prefix, the few-shot examples in the given order and
// the output-format suffix carrying the question and the table information.
// The result only depends on data, identical inputs always render identical text.
func AssemblePrompt(data PromptData) (string, error) {
	parts := make([]string, 0, len(data.Examples)+2)

	prefix, err := executeTemplate(prefixTemplate, prefixPromptData{PrefixData: data.Prefix, TopK: data.TopK})
	if err != nil {
		return "", err
	}
	parts = append(parts, prefix)

	for _, example := range data.Examples {
		rendered, err := executeTemplate(exampleTemplate, example)
		if err != nil {
			return "", err
		}
		parts = append(parts, rendered)
	}

	suffix, err := executeTemplate(suffixTemplate, data)
	if err != nil {
		return "", err
	}
	parts = append(parts, suffix)

	return strings.Join(parts, exampleSeparator), nil
}
