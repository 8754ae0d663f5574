package datasource

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ajitpratap0/sqlrt/pkg/binder"
	"github.com/ajitpratap0/sqlrt/pkg/errors"
)

// PgxDriver opens native PostgreSQL connections.
type PgxDriver struct{}

// NewPgxDriver creates the PostgreSQL driver.
func NewPgxDriver() *PgxDriver {
	return &PgxDriver{}
}

// Placeholder implements Driver.
func (*PgxDriver) Placeholder() binder.Style { return binder.StyleDollar }

// Open implements Driver.
func (*PgxDriver) Open(ctx context.Context, locator string) (Conn, error) {
	cfg, err := pgx.ParseConfig(locator)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres locator").
			WithDetail("locator", Redact(locator))
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres").
			WithDetail("locator", Redact(locator))
	}
	return &pgxConn{conn: conn}, nil
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgxConn struct {
	conn *pgx.Conn
	tx   pgx.Tx
}

func (c *pgxConn) querier() pgxQuerier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

func (c *pgxConn) Prepare(_ context.Context, query string) (Stmt, error) {
	return &pgxStmt{conn: c, query: query}, nil
}

func (c *pgxConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New(errors.ErrorTypeTransactionState, "transaction already active on connection")
	}
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeExecution, "begin failed")
	}
	c.tx = tx
	return nil
}

func (c *pgxConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errors.New(errors.ErrorTypeTransactionState, "no transaction on connection")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeExecution, "commit failed")
	}
	return nil
}

func (c *pgxConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errors.New(errors.ErrorTypeTransactionState, "no transaction on connection")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeExecution, "rollback failed")
	}
	return nil
}

func (c *pgxConn) Close(ctx context.Context) error {
	if err := c.conn.Close(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close postgres connection")
	}
	return nil
}

type pgxStmt struct {
	conn  *pgxConn
	query string
	args  []any
}

func (s *pgxStmt) Bind(pos int, value interface{}) error {
	if pos < 1 {
		return errors.Newf(errors.ErrorTypeBind, "parameter position %d out of range", pos)
	}
	for len(s.args) < pos {
		s.args = append(s.args, nil)
	}
	s.args[pos-1] = value
	return nil
}

func (s *pgxStmt) Query(ctx context.Context) (*Table, error) {
	rows, err := s.conn.querier().Query(ctx, s.query, s.args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExecution, "query failed").WithStatement(s.query)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	t := &Table{Columns: make([]string, len(fields))}
	for i, f := range fields {
		t.Columns[i] = f.Name
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeExecution, "failed to get row values").WithStatement(s.query)
		}
		t.Rows = append(t.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExecution, "query failed").WithStatement(s.query)
	}
	return t, nil
}

func (s *pgxStmt) Exec(ctx context.Context) (int64, error) {
	tag, err := s.conn.querier().Exec(ctx, s.query, s.args...)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeExecution, "exec failed").WithStatement(s.query)
	}
	return tag.RowsAffected(), nil
}

func (s *pgxStmt) Close() error {
	s.args = nil
	return nil
}
