package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sqlrt/pkg/errors"
)

func TestFor(t *testing.T) {
	tests := []struct {
		locator string
		want    string
	}{
		{"mysql://app@db:3306/orders", "mysql"},
		{"postgres://app@db/orders", "postgres"},
		{"POSTGRESQL://app@db/orders", "postgres"},
		{"sqlite:///tmp/app.db", "sqlite"},
		{"sqlite3://:memory:", "sqlite"},
		{"snowflake://acct/db", "snowflake"},
		{"sqlserver://sa@db", "sqlserver"},
		{"mssql://sa@db", "sqlserver"},
	}

	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			d, err := For(tt.locator)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestFor_UnknownScheme(t *testing.T) {
	_, err := For("oracle://scott:tiger@db/orcl")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.NotContains(t, err.Error(), "tiger")

	_, err = For("no-scheme")
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`orders`", MySQL.QuoteIdent("orders"))
	assert.Equal(t, "`odd``name`", MySQL.QuoteIdent("odd`name"))
	assert.Equal(t, `"orders"`, Postgres.QuoteIdent("orders"))
	assert.Equal(t, `"say ""hi"""`, SQLite.QuoteIdent(`say "hi"`))
	assert.Equal(t, "[orders]", SQLServer.QuoteIdent("orders"))
	assert.Equal(t, "[a]]b]", SQLServer.QuoteIdent("a]b"))
}

func TestWrapPage(t *testing.T) {
	const sql = "SELECT id FROM orders ORDER BY id"

	assert.Equal(t,
		"SELECT * FROM (SELECT id FROM orders ORDER BY id) t LIMIT 100, 50",
		MySQL.WrapPage(sql, 2, 50))
	assert.Equal(t,
		"SELECT * FROM (SELECT id FROM orders ORDER BY id) t LIMIT 50 OFFSET 100",
		Postgres.WrapPage(sql, 2, 50))
	assert.Equal(t,
		"SELECT * FROM (SELECT id FROM orders ORDER BY id) t LIMIT 10 OFFSET 0",
		SQLite.WrapPage(sql, 0, 10))
	assert.Equal(t,
		"SELECT id FROM orders ORDER BY id OFFSET 100 ROWS FETCH NEXT 50 ROWS ONLY",
		SQLServer.WrapPage(sql, 2, 50))
}

func TestWrapPage_SQLServerZeroRows(t *testing.T) {
	got := SQLServer.WrapPage("SELECT id FROM orders ORDER BY id DESC", 0, 0)
	assert.Equal(t, "SELECT TOP 0 * FROM (SELECT id FROM orders) t", got)
}

func TestWrapCount(t *testing.T) {
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT id FROM orders) t", MySQL.WrapCount("SELECT id FROM orders"))
	assert.Equal(t,
		"SELECT COUNT(*) FROM (SELECT id FROM orders ORDER BY id) t",
		Postgres.WrapCount("SELECT id FROM orders ORDER BY id"))
	assert.Equal(t,
		"SELECT COUNT(*) FROM (SELECT id FROM orders WHERE x = 1) t",
		SQLServer.WrapCount("SELECT id FROM orders WHERE x = 1\n ORDER BY id"))
}

func TestLastInsertID(t *testing.T) {
	assert.Equal(t, "SELECT LAST_INSERT_ID()", MySQL.LastInsertID())
	assert.Equal(t, "SELECT lastval()", Postgres.LastInsertID())
	assert.Equal(t, "SELECT last_insert_rowid()", SQLite.LastInsertID())
	assert.Equal(t, "SELECT SCOPE_IDENTITY()", SQLServer.LastInsertID())
	assert.Empty(t, Snowflake.LastInsertID())
}

func TestAppendStatement(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO t VALUES (1);SELECT LAST_INSERT_ID()",
		MySQL.AppendStatement("INSERT INTO t VALUES (1)", MySQL.LastInsertID()))
	assert.Equal(t,
		"INSERT INTO t VALUES (1);SELECT SCOPE_IDENTITY()",
		SQLServer.AppendStatement("INSERT INTO t VALUES (1); ", SQLServer.LastInsertID()))
}

func TestBuilder(t *testing.T) {
	b := NewBuilder(16).WriteQuery("LIMIT ").WriteInt(-3).WriteChar(';')
	assert.Equal(t, "LIMIT -3;", b.String())
}
