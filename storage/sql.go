package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// SQL runs generated queries against a relational database through database/sql and describes
// its tables for the prompt. The driver must be registered by the caller.
type SQL struct {
	DB *sql.DB

	driver     string
	tables     []string
	maxRows    int
	sampleRows int
}

const (
	defaultSQLMaxRows    = 200
	defaultSQLSampleRows = 3
)

// ErrEmptySQL is returned by Run when the query has no statement.
var ErrEmptySQL = errors.New("sql query is empty")

// OpenSQL opens and pings the database identified by driver and dsn.
func OpenSQL(ctx context.Context, driver, dsn string) (SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return SQL{}, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return SQL{}, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	return NewSQL(db, driver), nil
}

// NewSQL wraps an opened database. The driver name selects how tables are described.
func NewSQL(db *sql.DB, driver string) SQL {
	return SQL{
		DB:         db,
		driver:     driver,
		maxRows:    defaultSQLMaxRows,
		sampleRows: defaultSQLSampleRows,
	}
}

// WithTables returns a copy of s that only describes the given tables.
func (s SQL) WithTables(tables ...string) SQL {
	s.tables = tables
	return s
}

// WithMaxRows returns a copy of s that reads at most n rows of a result. Rows past the cap are
// never read, the query itself is left unchanged.
func (s SQL) WithMaxRows(n int) SQL {
	if n > 0 {
		s.maxRows = n
	}
	return s
}

// Run executes the query and renders its rows as a list of tuples, e.g. [(1, 'Nike'), (2, 'Levi')].
// An empty result renders as an empty string.
func (s SQL) Run(ctx context.Context, query string) (string, error) {
	query = stripTrailingSemicolons(query)
	if query == "" {
		return "", ErrEmptySQL
	}

	rows, err := s.query(ctx, query, s.maxRows)
	if err != nil {
		return "", err
	}

	return formatTuples(rows.values), nil
}

// TableInfo describes every table of the current schema with its columns followed by a few
// sample rows.
func (s SQL) TableInfo(ctx context.Context) (string, error) {
	columns, order, err := s.tableColumns(ctx)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(order))
	for _, table := range order {
		sample, err := s.query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", s.quoteIdent(table), s.sampleRows), s.sampleRows)
		if err != nil {
			return "", fmt.Errorf("failed to sample table %s: %w", table, err)
		}
		parts = append(parts, describeTable(table, columns[table], sample, s.sampleRows))
	}

	return strings.Join(parts, "\n\n\n"), nil
}

// Close closes the database.
func (s SQL) Close() error {
	return s.DB.Close()
}

type sqlColumn struct {
	name     string
	dataType string
	nullable bool
}

type sqlRows struct {
	columns []string
	values  [][]any
}

func (s SQL) tableColumns(ctx context.Context) (map[string][]sqlColumn, []string, error) {
	rows, err := s.DB.QueryContext(ctx, s.columnsQuery())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string][]sqlColumn)
	order := make([]string, 0)
	for rows.Next() {
		var table, name, dataType, nullable string
		if err := rows.Scan(&table, &name, &dataType, &nullable); err != nil {
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if len(s.tables) > 0 && !slices.Contains(s.tables, table) {
			continue
		}
		if _, ok := columns[table]; !ok {
			order = append(order, table)
		}
		columns[table] = append(columns[table], sqlColumn{
			name:     name,
			dataType: dataType,
			nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate columns: %w", err)
	}

	return columns, order, nil
}

func (s SQL) columnsQuery() string {
	schema := "current_schema()"
	dataType := "data_type"
	if s.driver == "mysql" {
		schema = "DATABASE()"
		dataType = "column_type"
	}

	return fmt.Sprintf(`SELECT table_name, column_name, %s, is_nullable
FROM information_schema.columns
WHERE table_schema = %s
ORDER BY table_name, ordinal_position`, dataType, schema)
}

func (s SQL) query(ctx context.Context, query string, limit int) (sqlRows, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return sqlRows{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return sqlRows{}, fmt.Errorf("failed to get columns: %w", err)
	}
	numeric := numericColumns(rows)

	result := sqlRows{columns: columns, values: make([][]any, 0)}
	for len(result.values) < limit && rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return sqlRows{}, fmt.Errorf("failed to scan row: %w", err)
		}
		result.values = append(result.values, normalizeValues(values, numeric))
	}
	if err := rows.Err(); err != nil {
		return sqlRows{}, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

func (s SQL) quoteIdent(value string) string {
	if s.driver == "mysql" {
		return "`" + strings.ReplaceAll(value, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

type rawNumber string

func numericColumns(rows *sql.Rows) []bool {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil
	}

	numeric := make([]bool, len(types))
	for i, t := range types {
		switch strings.ToUpper(t.DatabaseTypeName()) {
		case "DECIMAL", "NUMERIC", "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT",
			"UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT",
			"FLOAT", "DOUBLE", "REAL", "INT2", "INT4", "INT8", "FLOAT4", "FLOAT8", "HUGEINT":
			numeric[i] = true
		}
	}
	return numeric
}

func normalizeValues(values []any, numeric []bool) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			if i < len(numeric) && numeric[i] {
				normalized[i] = rawNumber(typed)
			} else {
				normalized[i] = string(typed)
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func formatTuples(rows [][]any) string {
	if len(rows) == 0 {
		return ""
	}

	tuples := make([]string, len(rows))
	for i, row := range rows {
		values := make([]string, len(row))
		for j, value := range row {
			values[j] = formatValue(value)
		}
		if len(values) == 1 {
			tuples[i] = "(" + values[0] + ",)"
			continue
		}
		tuples[i] = "(" + strings.Join(values, ", ") + ")"
	}

	return "[" + strings.Join(tuples, ", ") + "]"
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "None"
	case rawNumber:
		return string(typed)
	case string:
		return quoteString(typed)
	case bool:
		if typed {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case time.Time:
		return quoteString(typed.Format(time.DateTime))
	default:
		return fmt.Sprint(typed)
	}
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "None"
	case string:
		return typed
	default:
		return formatValue(typed)
	}
}

func quoteString(value string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(value, `\`, `\\`), "'", `\'`) + "'"
}

func describeTable(table string, columns []sqlColumn, sample sqlRows, sampleRows int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
	for i, column := range columns {
		fmt.Fprintf(&b, "\t%s %s", column.name, column.dataType)
		if !column.nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")\n\n/*\n")

	fmt.Fprintf(&b, "%d rows from %s table:\n", sampleRows, table)
	b.WriteString(strings.Join(sample.columns, "\t"))
	for _, row := range sample.values {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, "\t"))
	}
	b.WriteString("\n*/")

	return b.String()
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
