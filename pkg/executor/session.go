package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/binder"
	"github.com/ajitpratap0/sqlrt/pkg/datasource"
	"github.com/ajitpratap0/sqlrt/pkg/dialect"
	"github.com/ajitpratap0/sqlrt/pkg/errors"
	"github.com/ajitpratap0/sqlrt/pkg/logger"
	"github.com/ajitpratap0/sqlrt/pkg/metrics"
	"github.com/ajitpratap0/sqlrt/pkg/pool"
)

// Session is the access session of one locator. It carries common variables
// and at most one transaction. Tables returned from cached calls are shared
// and must not be modified.
type Session struct {
	exec    *Executor
	locator string
	label   string
	id      string
	logger  *zap.Logger

	common []*binder.Variable

	// mu guards tx and serializes statements running on it
	mu sync.Mutex
	tx *pool.PooledConn
}

// Session opens an access session for locator.
func (e *Executor) Session(locator string) *Session {
	n := e.sessions.Add(1)
	id := fmt.Sprintf("s-%d", n)
	label := datasource.Redact(locator)
	common := make([]*binder.Variable, len(e.common))
	copy(common, e.common)
	return &Session{
		exec:    e,
		locator: locator,
		label:   label,
		id:      id,
		logger:  e.logger.With(zap.String("session_id", id), zap.String("locator", label)),
		common:  common,
	}
}

// Locator returns the session locator.
func (s *Session) Locator() string { return s.locator }

// Executor returns the executor the session belongs to.
func (s *Session) Executor() *Executor { return s.exec }

// SetCommon appends variables that are bound in every statement of the
// session ahead of per-call arguments.
func (s *Session) SetCommon(vars ...*binder.Variable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.common = append(s.common, vars...)
}

// Execute runs a statement that returns no rows and reports the affected
// row count. It is never cached.
func (s *Session) Execute(ctx context.Context, template string, args ...interface{}) (int64, error) {
	res, err := s.run(ctx, request{kind: kindExec, template: template, args: args})
	if err != nil {
		return 0, err
	}
	return res.affected, nil
}

// ExecuteCached runs a query and caches its table for ttl. A ttl of zero
// bypasses the cache.
func (s *Session) ExecuteCached(ctx context.Context, ttl time.Duration, template string, args ...interface{}) (*datasource.Table, error) {
	if ttl < 0 {
		ttl = 0
	}
	res, err := s.run(ctx, request{kind: kindQuery, template: template, args: args, ttl: ttl})
	if err != nil {
		return nil, err
	}
	return res.table, nil
}

// Query runs a query using the statement's configured cache TTL.
func (s *Session) Query(ctx context.Context, template string, args ...interface{}) (*datasource.Table, error) {
	res, err := s.run(ctx, request{kind: kindQuery, template: template, args: args, ttl: defaultTTL})
	if err != nil {
		return nil, err
	}
	return res.table, nil
}

// QueryValue returns the first column of the first row, or nil when the
// query yields no rows.
func (s *Session) QueryValue(ctx context.Context, template string, args ...interface{}) (interface{}, error) {
	t, err := s.Query(ctx, template, args...)
	if err != nil {
		return nil, err
	}
	v, _ := t.First()
	return v, nil
}

// QueryColumn returns the first column of every row.
func (s *Session) QueryColumn(ctx context.Context, template string, args ...interface{}) ([]interface{}, error) {
	t, err := s.Query(ctx, template, args...)
	if err != nil {
		return nil, err
	}
	return t.Column(0), nil
}

// Count returns the number of rows the query yields, using the dialect's
// count wrapping.
func (s *Session) Count(ctx context.Context, template string, args ...interface{}) (int64, error) {
	d, err := dialect.For(s.locator)
	if err != nil {
		return 0, err
	}
	res, err := s.run(ctx, request{kind: kindQuery, template: template, args: args, rewrite: d.WrapCount})
	if err != nil {
		return 0, err
	}
	v, _ := res.table.First()
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeExecution, "count returned a non-numeric value").
			WithDetail("value", v)
	}
	return n, nil
}

// Exists reports whether the query yields at least one row.
func (s *Session) Exists(ctx context.Context, template string, args ...interface{}) (bool, error) {
	n, err := s.Count(ctx, template, args...)
	return n > 0, err
}

// Page returns one page of the query; page is zero based.
func (s *Session) Page(ctx context.Context, page, rows int, template string, args ...interface{}) (*datasource.Table, error) {
	if page < 0 || rows < 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "invalid page %d of %d rows", page, rows)
	}
	d, err := dialect.For(s.locator)
	if err != nil {
		return nil, err
	}
	wrap := func(sql string) string { return d.WrapPage(sql, page, rows) }
	res, err := s.run(ctx, request{kind: kindQuery, template: template, args: args, rewrite: wrap})
	if err != nil {
		return nil, err
	}
	return res.table, nil
}

// Insert runs a statement and returns the key it generated, read with the
// dialect's last-insert-id statement on the same connection.
func (s *Session) Insert(ctx context.Context, template string, args ...interface{}) (interface{}, error) {
	d, err := dialect.For(s.locator)
	if err != nil {
		return nil, err
	}
	if d.LastInsertID() == "" {
		return nil, errors.Newf(errors.ErrorTypeValidation, "%s has no last insert id statement", d.Name())
	}
	res, err := s.run(ctx, request{kind: kindExec, template: template, args: args, followUp: d.LastInsertID()})
	if err != nil {
		return nil, err
	}
	return res.id, nil
}

// InTransaction reports whether a transaction is active.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Begin starts a transaction. Transactions do not nest.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return errors.New(errors.ErrorTypeTransactionState, "transaction already active").
			WithDetail("locator", s.label)
	}

	conn, err := s.exec.registry.Acquire(ctx, s.locator)
	if err != nil {
		return err
	}
	if err := conn.Begin(ctx); err != nil {
		s.exec.registry.Release(ctx, conn, true)
		metrics.Transactions.WithLabelValues("failed").Inc()
		return wrapExecution(err, "begin transaction failed", "")
	}

	s.tx = conn
	metrics.Transactions.WithLabelValues("begin").Inc()
	s.logger.Debug("transaction started")
	return nil
}

// Commit commits the active transaction and releases its connection. The
// connection is closed when the commit fails.
func (s *Session) Commit(ctx context.Context) error {
	return s.finish(ctx, "commit", func(c *pool.PooledConn) error { return c.Commit(ctx) })
}

// Rollback aborts the active transaction and releases its connection.
func (s *Session) Rollback(ctx context.Context) error {
	return s.finish(ctx, "rollback", func(c *pool.PooledConn) error { return c.Rollback(ctx) })
}

func (s *Session) finish(ctx context.Context, outcome string, end func(*pool.PooledConn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return errors.Newf(errors.ErrorTypeTransactionState, "%s without active transaction", outcome).
			WithDetail("locator", s.label)
	}

	conn := s.tx
	s.tx = nil
	err := end(conn)
	s.exec.registry.Release(ctx, conn, err != nil)

	if err != nil {
		metrics.Transactions.WithLabelValues("failed").Inc()
		return wrapExecution(err, outcome+" failed", "")
	}
	metrics.Transactions.WithLabelValues(outcome).Inc()
	s.logger.Debug("transaction finished", zap.String("outcome", outcome))
	return nil
}

// Transact runs fn inside a transaction, committing when fn succeeds and
// rolling back otherwise.
func (s *Session) Transact(ctx context.Context, fn func(*Session) error) error {
	if err := s.Begin(ctx); err != nil {
		return err
	}
	if err := fn(s); err != nil {
		if rbErr := s.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback after failure failed", zap.Error(rbErr))
		}
		return err
	}
	return s.Commit(ctx)
}

// Close rolls back a transaction left open.
func (s *Session) Close(ctx context.Context) error {
	if !s.InTransaction() {
		return nil
	}
	s.logger.Warn("session closed with active transaction, rolling back")
	return s.Rollback(ctx)
}

func (s *Session) context(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, logger.SessionIDKey, s.id)
	return context.WithValue(ctx, logger.LocatorKey, s.label)
}

func wrapExecution(err error, msg, statement string) error {
	if e, ok := err.(*errors.Error); ok {
		if _, has := errors.Statement(e); !has && statement != "" {
			e.WithStatement(statement)
		}
		return e
	}
	w := errors.Wrap(err, errors.ErrorTypeExecution, msg)
	if statement != "" {
		w.WithStatement(statement)
	}
	return w
}
