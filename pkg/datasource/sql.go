package datasource

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/binder"
	"github.com/ajitpratap0/sqlrt/pkg/errors"
	"github.com/ajitpratap0/sqlrt/pkg/logger"
)

// Backend describes a database/sql driver and how a locator maps to its DSN.
type Backend struct {
	// DriverName is the name registered with database/sql.
	DriverName string
	// DSN converts a locator into a data source name.
	DSN func(locator string) (string, error)
	// Style is the placeholder syntax.
	Style binder.Style
}

var (
	// MySQL uses go-sql-driver/mysql.
	MySQL = Backend{DriverName: "mysql", DSN: mysqlDSN, Style: binder.StyleQuestion}
	// Snowflake uses gosnowflake.
	Snowflake = Backend{DriverName: "snowflake", DSN: snowflakeDSN, Style: binder.StyleQuestion}
	// SQLite uses mattn/go-sqlite3.
	SQLite = Backend{DriverName: "sqlite3", DSN: sqliteDSN, Style: binder.StyleQuestion}
)

// SQLDriver opens single connections from a database/sql handle. One handle
// is kept per DSN with idle pooling disabled, so closing a Conn closes the
// physical session and pooling stays with pkg/pool.
type SQLDriver struct {
	backend Backend

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewSQLDriver creates a driver for backend.
func NewSQLDriver(backend Backend) *SQLDriver {
	return &SQLDriver{backend: backend, dbs: make(map[string]*sql.DB)}
}

// Placeholder implements Driver.
func (d *SQLDriver) Placeholder() binder.Style { return d.backend.Style }

// Open implements Driver.
func (d *SQLDriver) Open(ctx context.Context, locator string) (Conn, error) {
	dsn, err := d.backend.DSN(locator)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid "+d.backend.DriverName+" locator").
			WithDetail("locator", Redact(locator))
	}

	db, err := d.handle(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database handle").
			WithDetail("locator", Redact(locator))
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect").
			WithDetail("locator", Redact(locator))
	}
	return &sqlConn{conn: conn, driver: d.backend.DriverName}, nil
}

func (d *SQLDriver) handle(dsn string) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if db, ok := d.dbs[dsn]; ok {
		return db, nil
	}
	db, err := sql.Open(d.backend.DriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(0)
	d.dbs[dsn] = db
	return db, nil
}

// Close closes every database handle opened by the driver.
func (d *SQLDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for dsn, db := range d.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.dbs, dsn)
	}
	return firstErr
}

func mysqlDSN(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", err
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.ParseTime = true
	if q := u.Query(); len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			switch k {
			case "parseTime":
				cfg.ParseTime = q.Get(k) != "false"
			default:
				cfg.Params[k] = q.Get(k)
			}
		}
	}
	return cfg.FormatDSN(), nil
}

func snowflakeDSN(locator string) (string, error) {
	dsn := strings.TrimPrefix(locator, "snowflake://")
	if _, err := gosnowflake.ParseDSN(dsn); err != nil {
		return "", err
	}
	return dsn, nil
}

func sqliteDSN(locator string) (string, error) {
	rest := locator
	if i := strings.Index(locator, "://"); i >= 0 {
		rest = locator[i+3:]
	}
	if rest == "" {
		return "", errors.New(errors.ErrorTypeValidation, "sqlite locator has no path")
	}
	if rest == ":memory:" {
		return "file::memory:?cache=shared", nil
	}
	return "file:" + rest, nil
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlConn struct {
	conn   *sql.Conn
	tx     *sql.Tx
	driver string
}

func (c *sqlConn) querier() sqlQuerier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

func (c *sqlConn) Prepare(_ context.Context, query string) (Stmt, error) {
	return &sqlStmt{conn: c, query: query}, nil
}

func (c *sqlConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New(errors.ErrorTypeTransactionState, "transaction already active on connection")
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeExecution, "begin failed")
	}
	c.tx = tx
	return nil
}

func (c *sqlConn) Commit(context.Context) error {
	if c.tx == nil {
		return errors.New(errors.ErrorTypeTransactionState, "no transaction on connection")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeExecution, "commit failed")
	}
	return nil
}

func (c *sqlConn) Rollback(context.Context) error {
	if c.tx == nil {
		return errors.New(errors.ErrorTypeTransactionState, "no transaction on connection")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeExecution, "rollback failed")
	}
	return nil
}

func (c *sqlConn) Close(context.Context) error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	if err := c.conn.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close connection")
	}
	return nil
}

type sqlStmt struct {
	conn  *sqlConn
	query string
	args  []any
}

func (s *sqlStmt) Bind(pos int, value interface{}) error {
	if pos < 1 {
		return errors.Newf(errors.ErrorTypeBind, "parameter position %d out of range", pos)
	}
	for len(s.args) < pos {
		s.args = append(s.args, nil)
	}
	s.args[pos-1] = value
	return nil
}

func (s *sqlStmt) Query(ctx context.Context) (*Table, error) {
	rows, err := s.conn.querier().QueryContext(ctx, s.query, s.args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExecution, "query failed").WithStatement(s.query)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExecution, "failed to read columns").WithStatement(s.query)
	}
	t := &Table{Columns: make([]string, len(types))}
	binary := make([]bool, len(types))
	for i, ct := range types {
		t.Columns[i] = ct.Name()
		binary[i] = isBinaryType(ct.DatabaseTypeName())
	}

	for rows.Next() {
		values := make([]interface{}, len(types))
		ptrs := make([]interface{}, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeExecution, "failed to scan row").WithStatement(s.query)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok && !binary[i] {
				values[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExecution, "query failed").WithStatement(s.query)
	}
	return t, nil
}

func (s *sqlStmt) Exec(ctx context.Context) (int64, error) {
	res, err := s.conn.querier().ExecContext(ctx, s.query, s.args...)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeExecution, "exec failed").WithStatement(s.query)
	}
	n, err := res.RowsAffected()
	if err != nil {
		logger.Debug("rows affected unavailable", zap.String("driver", s.conn.driver), zap.Error(err))
		return 0, nil
	}
	return n, nil
}

func (s *sqlStmt) Close() error {
	s.args = nil
	return nil
}

func isBinaryType(name string) bool {
	switch strings.ToUpper(name) {
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "BYTEA":
		return true
	}
	return false
}
