package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/sqlrt/pkg/binder"
	"github.com/ajitpratap0/sqlrt/pkg/datasource"
)

// Executed records one statement run against a FakeDriver.
type Executed struct {
	ConnID int
	SQL    string
	Args   []interface{}
	Query  bool
	InTx   bool
}

// FakeDriver is an in-memory datasource.Driver. Results and failures are
// scripted per SQL text; every open, close and executed statement is recorded.
type FakeDriver struct {
	mu sync.Mutex

	style     binder.Style
	openErr   error
	commitErr error
	results   map[string]*datasource.Table
	errs      map[string]error
	affected  map[string]int64
	executed  []Executed
	nextID    int
	opens     int
	closes    int
	commits   int
	rollbacks int
	live      map[int]*FakeConn
	openHook  func(locator string)
}

// NewFakeDriver creates a driver using '?' placeholders.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		results:  make(map[string]*datasource.Table),
		errs:     make(map[string]error),
		affected: make(map[string]int64),
		live:     make(map[int]*FakeConn),
	}
}

// WithStyle sets the placeholder style.
func (d *FakeDriver) WithStyle(s binder.Style) *FakeDriver {
	d.style = s
	return d
}

// Placeholder implements datasource.Driver.
func (d *FakeDriver) Placeholder() binder.Style { return d.style }

// Open implements datasource.Driver.
func (d *FakeDriver) Open(_ context.Context, locator string) (datasource.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openHook != nil {
		d.openHook(locator)
	}
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.nextID++
	d.opens++
	c := &FakeConn{id: d.nextID, driver: d, locator: locator}
	d.live[c.id] = c
	return c, nil
}

// SetOpenError makes every subsequent Open fail with err (nil clears it).
func (d *FakeDriver) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// SetCommitError makes commits fail with err.
func (d *FakeDriver) SetCommitError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commitErr = err
}

// OnOpen registers a callback invoked on every Open attempt. The callback
// runs under the driver lock and must not call back into the driver.
func (d *FakeDriver) OnOpen(fn func(locator string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openHook = fn
}

// SetResult scripts the table returned for sql.
func (d *FakeDriver) SetResult(sql string, t *datasource.Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[sql] = t
}

// SetError scripts a failure for sql.
func (d *FakeDriver) SetError(sql string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[sql] = err
}

// SetRowsAffected scripts the affected row count for sql.
func (d *FakeDriver) SetRowsAffected(sql string, n int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.affected[sql] = n
}

// Executed returns a copy of the statement log.
func (d *FakeDriver) Executed() []Executed {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Executed, len(d.executed))
	copy(out, d.executed)
	return out
}

// Opens returns the number of successful opens.
func (d *FakeDriver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Closes returns the number of closed connections.
func (d *FakeDriver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Live returns the number of open connections.
func (d *FakeDriver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// IsOpen reports whether connection id is open.
func (d *FakeDriver) IsOpen(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[id]
	return ok
}

// Commits returns the number of commits attempted.
func (d *FakeDriver) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

// Rollbacks returns the number of rollbacks.
func (d *FakeDriver) Rollbacks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rollbacks
}

// Table builds a table from column names followed by row values.
func Table(columns []string, rows ...[]interface{}) *datasource.Table {
	return &datasource.Table{Columns: columns, Rows: rows}
}

// FakeConn is a connection of a FakeDriver.
type FakeConn struct {
	id      int
	driver  *FakeDriver
	locator string
	inTx    bool
	closed  bool
}

// ID returns the connection number, starting at 1.
func (c *FakeConn) ID() int { return c.id }

func (c *FakeConn) Prepare(_ context.Context, query string) (datasource.Stmt, error) {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("connection %d is closed", c.id)
	}
	return &fakeStmt{conn: c, query: query}, nil
}

func (c *FakeConn) Begin(context.Context) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	if c.inTx {
		return fmt.Errorf("connection %d already in transaction", c.id)
	}
	c.inTx = true
	return nil
}

func (c *FakeConn) Commit(context.Context) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	c.inTx = false
	c.driver.commits++
	return c.driver.commitErr
}

func (c *FakeConn) Rollback(context.Context) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	c.inTx = false
	c.driver.rollbacks++
	return nil
}

func (c *FakeConn) Close(context.Context) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %d closed twice", c.id)
	}
	c.closed = true
	c.driver.closes++
	delete(c.driver.live, c.id)
	return nil
}

type fakeStmt struct {
	conn  *FakeConn
	query string
	args  []interface{}
}

func (s *fakeStmt) Bind(pos int, value interface{}) error {
	for len(s.args) < pos {
		s.args = append(s.args, nil)
	}
	s.args[pos-1] = value
	return nil
}

func (s *fakeStmt) record(query bool) error {
	d := s.conn.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	args := make([]interface{}, len(s.args))
	copy(args, s.args)
	d.executed = append(d.executed, Executed{
		ConnID: s.conn.id,
		SQL:    s.query,
		Args:   args,
		Query:  query,
		InTx:   s.conn.inTx,
	})
	return d.errs[s.query]
}

func (s *fakeStmt) Query(context.Context) (*datasource.Table, error) {
	if err := s.record(true); err != nil {
		return nil, err
	}
	s.conn.driver.mu.Lock()
	defer s.conn.driver.mu.Unlock()
	if t, ok := s.conn.driver.results[s.query]; ok {
		return t, nil
	}
	return &datasource.Table{}, nil
}

func (s *fakeStmt) Exec(context.Context) (int64, error) {
	if err := s.record(false); err != nil {
		return 0, err
	}
	s.conn.driver.mu.Lock()
	defer s.conn.driver.mu.Unlock()
	return s.conn.driver.affected[s.query], nil
}

func (s *fakeStmt) Close() error { return nil }
