package database

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// Granularity selects the period a timestamp is bucketed into.
type Granularity string

const (
	GranularityMonth Granularity = "month"
	GranularityDay   Granularity = "day"
)

// Dialect captures the SQL differences between supported stores. Queries are
// always written with $1..$n placeholders; Rebind adapts them.
type Dialect interface {
	// Name returns the config.Driver* constant of the store.
	Name() string
	// LimitQuery bounds query to at most limit rows.
	LimitQuery(query string, limit int) string
	// Rebind converts $n placeholders and their args to the driver's form.
	Rebind(query string, args []any) (string, []any)
	// TimeArg returns the bind value for a timestamp bound.
	TimeArg(t time.Time) any
	// PeriodExpr renders column truncated to g as text (YYYY-MM or YYYY-MM-DD).
	PeriodExpr(column string, g Granularity) string
	// TableExistsQuery takes the table name as $1 and yields a row when it exists.
	TableExistsQuery() string
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// orderedTail reports whether query ends with a top-level ORDER BY clause.
// Generated queries only nest parentheses inside expressions, so an ORDER BY
// after the last closing parenthesis belongs to the outer statement.
func orderedTail(query string) bool {
	upper := strings.ToUpper(query)
	idx := strings.LastIndex(upper, "ORDER BY")
	return idx >= 0 && idx > strings.LastIndex(upper, ")")
}

// PostgresDialect targets PostgreSQL through pgx.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return config.DriverPostgres }

func (PostgresDialect) LimitQuery(query string, limit int) string {
	if orderedTail(query) {
		return fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", query, limit)
}

func (PostgresDialect) Rebind(query string, args []any) (string, []any) { return query, args }

// TimeArg binds time.Time; pgx encodes timestamp without time zone from the
// wall clock.
func (PostgresDialect) TimeArg(t time.Time) any { return t }

func (PostgresDialect) PeriodExpr(column string, g Granularity) string {
	if g == GranularityDay {
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
	}
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM')", column)
}

func (PostgresDialect) TableExistsQuery() string {
	return `SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
}

// MSSQLDialect targets SQL Server through go-mssqldb.
type MSSQLDialect struct{}

func (MSSQLDialect) Name() string { return config.DriverSQLServer }

// LimitQuery uses OFFSET/FETCH when the query is ordered (TOP inside a derived
// table would lose the ordering) and TOP otherwise.
func (MSSQLDialect) LimitQuery(query string, limit int) string {
	if orderedTail(query) {
		return fmt.Sprintf("%s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", query, limit)
	}
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, query)
}

// Rebind turns $n into @pn and wraps args as sql.Named.
func (MSSQLDialect) Rebind(query string, args []any) (string, []any) {
	out := placeholderRe.ReplaceAllString(query, "@p$1")
	named := make([]any, len(args))
	for i, a := range args {
		named[i] = sql.Named(fmt.Sprintf("p%d", i+1), a)
	}
	return out, named
}

// TimeArg binds text so SQL Server converts it to the column's datetime2
// without applying a time zone offset.
func (MSSQLDialect) TimeArg(t time.Time) any { return t.Format(models.TimestampLayout) }

func (MSSQLDialect) PeriodExpr(column string, g Granularity) string {
	if g == GranularityDay {
		return fmt.Sprintf("CONVERT(VARCHAR(10), %s, 120)", column)
	}
	return fmt.Sprintf("CONVERT(VARCHAR(7), %s, 120)", column)
}

func (MSSQLDialect) TableExistsQuery() string {
	return `SELECT 1 FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = $1`
}

// SQLiteDialect targets mattn/go-sqlite3. Timestamps are stored as text in
// TimestampLayout, which sorts and compares correctly.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return config.DriverSQLite }

func (SQLiteDialect) LimitQuery(query string, limit int) string {
	if orderedTail(query) {
		return fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", query, limit)
}

// Rebind turns $n into ?n, which keeps the argument order explicit.
func (SQLiteDialect) Rebind(query string, args []any) (string, []any) {
	return placeholderRe.ReplaceAllString(query, "?$1"), args
}

func (SQLiteDialect) TimeArg(t time.Time) any { return t.Format(models.TimestampLayout) }

func (SQLiteDialect) PeriodExpr(column string, g Granularity) string {
	if g == GranularityDay {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
	}
	return fmt.Sprintf("strftime('%%Y-%%m', %s)", column)
}

func (SQLiteDialect) TableExistsQuery() string {
	return `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = $1`
}

// DialectFor returns the dialect of a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return PostgresDialect{}, nil
	case config.DriverSQLServer:
		return MSSQLDialect{}, nil
	case config.DriverSQLite:
		return SQLiteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
