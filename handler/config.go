package handler

import "strings"

// Dialect presets, keyed by the database/sql driver names they apply to.
var (
	MySQL = Default{
		Dialect:         "MySQL",
		ColumnQuote:     "`",
		ColumnQuoteName: "backticks",
		DateFunction:    "CURDATE()",
	}

	PostgreSQL = Default{
		Dialect:         "PostgreSQL",
		ColumnQuote:     `"`,
		ColumnQuoteName: "double quotes",
		DateFunction:    "CURRENT_DATE",
	}

	DuckDB = Default{
		Dialect:         "DuckDB",
		ColumnQuote:     `"`,
		ColumnQuoteName: "double quotes",
		DateFunction:    "current_date",
	}
)

// ForDriver returns the preset for a database/sql driver name.
// Unknown drivers get the MySQL preset.
func ForDriver(driver string) Default {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return PostgreSQL
	case "duckdb":
		return DuckDB
	default:
		return MySQL
	}
}
