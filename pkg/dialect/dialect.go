// Package dialect adapts statement text to the SQL flavour of a data source:
// identifier quoting, pagination, count wrapping and the statement that
// returns the last generated key.
//
// A dialect is resolved from the scheme of a locator:
//
//	d, err := dialect.For("mysql://app@db:3306/orders")
//	page := d.WrapPage("SELECT id FROM orders ORDER BY id", 2, 50)
package dialect

import (
	"strings"

	"github.com/ajitpratap0/sqlrt/pkg/datasource"
	"github.com/ajitpratap0/sqlrt/pkg/errors"
)

// Dialect produces backend specific statement text.
type Dialect interface {
	// Name returns the dialect identifier.
	Name() string
	// QuoteIdent quotes a single table or column name.
	QuoteIdent(name string) string
	// WrapPage limits sql to one page; page is zero based.
	WrapPage(sql string, page, rows int) string
	// WrapCount turns sql into a statement returning its row count.
	WrapCount(sql string) string
	// LastInsertID returns the statement yielding the last generated key,
	// or "" when the backend has none.
	LastInsertID() string
	// AppendStatement joins two statements into one batch.
	AppendStatement(sql, next string) string
}

var (
	// MySQL quotes with backticks and pages with LIMIT offset, count.
	MySQL Dialect = mysqlDialect{}
	// Postgres quotes with double quotes and pages with LIMIT/OFFSET.
	Postgres Dialect = ansiDialect{name: "postgres", lastID: "SELECT lastval()"}
	// SQLite shares the Postgres paging syntax.
	SQLite Dialect = ansiDialect{name: "sqlite", lastID: "SELECT last_insert_rowid()"}
	// Snowflake has no session scoped generated key.
	Snowflake Dialect = ansiDialect{name: "snowflake"}
	// SQLServer quotes with brackets and pages with OFFSET/FETCH.
	SQLServer Dialect = sqlServerDialect{}
)

var byScheme = map[string]Dialect{
	"mysql":      MySQL,
	"postgres":   Postgres,
	"postgresql": Postgres,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"snowflake":  Snowflake,
	"sqlserver":  SQLServer,
	"mssql":      SQLServer,
}

// For returns the dialect for the scheme of locator.
func For(locator string) (Dialect, error) {
	scheme := datasource.Scheme(locator)
	if d, ok := byScheme[scheme]; ok {
		return d, nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "no dialect for scheme %q", scheme).
		WithDetail("locator", datasource.Redact(locator))
}

// quote wraps name in left/right, doubling any embedded right character.
func quote(name string, left, right byte) string {
	b := NewBuilder(len(name) + 2).WriteChar(left)
	for i := 0; i < len(name); i++ {
		if name[i] == right {
			b.WriteChar(right)
		}
		b.WriteChar(name[i])
	}
	return b.WriteChar(right).String()
}

// stripOrderBy removes a trailing ORDER BY clause, which SQL Server rejects
// inside derived tables.
func stripOrderBy(sql string) string {
	if i := strings.LastIndex(strings.ToLower(sql), "order by "); i >= 0 {
		return strings.TrimRight(sql[:i], " \t\r\n")
	}
	return sql
}

func appendStatement(sql, next string) string {
	return strings.TrimRight(strings.TrimSpace(sql), ";") + ";" + next
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                  { return "mysql" }
func (mysqlDialect) QuoteIdent(name string) string { return quote(name, '`', '`') }
func (mysqlDialect) LastInsertID() string          { return "SELECT LAST_INSERT_ID()" }

func (mysqlDialect) AppendStatement(sql, next string) string { return appendStatement(sql, next) }

func (mysqlDialect) WrapPage(sql string, page, rows int) string {
	return derived(sql).WriteQuery(" LIMIT ").WriteInt(int64(page * rows)).
		WriteQuery(", ").WriteInt(int64(rows)).String()
}

func (mysqlDialect) WrapCount(sql string) string { return countOf(sql) }

type ansiDialect struct {
	name   string
	lastID string
}

func (d ansiDialect) Name() string                  { return d.name }
func (d ansiDialect) QuoteIdent(name string) string { return quote(name, '"', '"') }
func (d ansiDialect) LastInsertID() string          { return d.lastID }

func (d ansiDialect) AppendStatement(sql, next string) string { return appendStatement(sql, next) }

func (d ansiDialect) WrapPage(sql string, page, rows int) string {
	return derived(sql).WriteQuery(" LIMIT ").WriteInt(int64(rows)).
		WriteQuery(" OFFSET ").WriteInt(int64(page * rows)).String()
}

func (d ansiDialect) WrapCount(sql string) string { return countOf(sql) }

type sqlServerDialect struct{}

func (sqlServerDialect) Name() string                  { return "sqlserver" }
func (sqlServerDialect) QuoteIdent(name string) string { return quote(name, '[', ']') }
func (sqlServerDialect) LastInsertID() string          { return "SELECT SCOPE_IDENTITY()" }

func (sqlServerDialect) AppendStatement(sql, next string) string { return appendStatement(sql, next) }

func (sqlServerDialect) WrapPage(sql string, page, rows int) string {
	if rows == 0 {
		return NewBuilder(len(sql) + 32).WriteQuery("SELECT TOP 0 * FROM (").
			WriteQuery(stripOrderBy(sql)).WriteQuery(") t").String()
	}
	// OFFSET/FETCH requires the caller's ORDER BY to stay in place
	return NewBuilder(len(sql) + 48).WriteQuery(sql).
		WriteQuery(" OFFSET ").WriteInt(int64(page * rows)).
		WriteQuery(" ROWS FETCH NEXT ").WriteInt(int64(rows)).
		WriteQuery(" ROWS ONLY").String()
}

func (sqlServerDialect) WrapCount(sql string) string { return countOf(stripOrderBy(sql)) }

func derived(sql string) *Builder {
	return NewBuilder(len(sql) + 48).WriteQuery("SELECT * FROM (").WriteQuery(sql).WriteQuery(") t")
}

func countOf(sql string) string {
	return NewBuilder(len(sql) + 32).WriteQuery("SELECT COUNT(*) FROM (").WriteQuery(sql).WriteQuery(") t").String()
}
