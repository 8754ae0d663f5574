package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/binder"
	"github.com/ajitpratap0/sqlrt/pkg/cache"
	"github.com/ajitpratap0/sqlrt/pkg/datasource"
	"github.com/ajitpratap0/sqlrt/pkg/metrics"
	"github.com/ajitpratap0/sqlrt/pkg/observability"
	"github.com/ajitpratap0/sqlrt/pkg/pool"
	"github.com/ajitpratap0/sqlrt/pkg/script"
	"github.com/ajitpratap0/sqlrt/pkg/statements"
)

const (
	kindQuery = "query"
	kindExec  = "exec"
)

// defaultTTL asks run to take the TTL from the statement source.
const defaultTTL time.Duration = -1

type request struct {
	kind     string
	template string
	args     []interface{}
	ttl      time.Duration
	// rewrite is applied to the expanded text before binding
	rewrite func(string) string
	// followUp is queried on the same connection after an exec
	followUp string
}

type result struct {
	table    *datasource.Table
	affected int64
	id       interface{}
}

func (s *Session) run(ctx context.Context, req request) (res result, err error) {
	e := s.exec
	ctx = s.context(ctx)
	ctx, span := observability.StartSpan(ctx, req.kind)
	defer func() { span.End(ctx, err) }()
	// session and locator fields come from ctx
	log := observability.Logger(ctx, e.logger)

	span.SetAttribute("db.locator", s.label)
	span.SetAttribute("db.template", req.template)

	stmt := statements.Resolve(e.source, req.template)
	ttl := req.ttl
	if ttl == defaultTTL {
		ttl = stmt.CacheTTL
	}
	vars := binder.FromArgs(req.args...)

	s.mu.Lock()
	all := make([]*binder.Variable, 0, len(s.common)+len(vars))
	all = append(all, s.common...)
	s.mu.Unlock()
	all = append(all, vars...)

	var key cache.CompositeKey
	cacheable := req.kind == kindQuery && ttl > 0
	if cacheable {
		key, err = cacheKey(s.locator, req.template, all)
		if err != nil {
			log.Debug("result not cacheable", zap.String("template", req.template), zap.Error(err))
			cacheable, err = false, nil
		} else if v, ok := e.cache.Get(key, ttl); ok {
			e.hits.Add(1)
			span.AddEvent("cache_hit")
			log.Debug("statement served from cache", zap.String("template", req.template))
			return result{table: v.(*datasource.Table)}, nil
		}
	}

	conn, inTx, done, err := s.acquire(ctx)
	if err != nil {
		return result{}, err
	}
	broken := false
	defer func() {
		done(broken)
	}()
	span.SetAttribute("db.in_transaction", inTx)

	opts := e.binder.Options()
	resolver := binder.NewResolver(ctx, all,
		binder.WithCaseInsensitiveNames(opts.CaseInsensitive),
		binder.WithSubquery(func(ctx context.Context, query string) (interface{}, error) {
			v, err := s.subquery(ctx, conn, query)
			if err != nil {
				broken = true
			}
			return v, err
		}),
	)

	sql, err := script.Expand(stmt.SQL, resolver)
	if err != nil {
		return result{}, err
	}

	info := &StatementInfo{Locator: s.locator, SQL: sql, Variables: resolver.Variables()}
	e.intercept(ctx, info, log)
	sql = info.SQL

	if req.rewrite != nil {
		sql = req.rewrite(sql)
	}

	bound, err := e.binder.BindStyle(sql, resolver, e.drivers.Placeholder(s.locator))
	if err != nil {
		return result{}, err
	}

	timer := metrics.NewTimer(req.kind)
	res, err = s.execute(ctx, conn, req, bound)
	elapsed := timer.Stop()
	e.latency.Record(elapsed)
	metrics.StatementLatency.WithLabelValues(req.kind).Observe(elapsed.Seconds())

	if err != nil {
		broken = true
		e.failed.Add(1)
		metrics.StatementsExecuted.WithLabelValues(req.kind, "failure").Inc()
		log.Debug("statement failed",
			zap.String("sql", bound.SQL),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return result{}, err
	}

	e.executed.Add(1)
	metrics.StatementsExecuted.WithLabelValues(req.kind, "success").Inc()
	log.Debug("statement executed",
		zap.String("sql", bound.SQL),
		zap.Int("args", len(bound.Args)),
		zap.Duration("elapsed", elapsed))

	if cacheable {
		e.cache.Put(key, res.table)
	}
	return res, nil
}

// acquire returns the transaction connection, holding the session lock until
// done is called, or a pooled connection released through done.
func (s *Session) acquire(ctx context.Context) (*pool.PooledConn, bool, func(bool), error) {
	s.mu.Lock()
	if s.tx != nil {
		return s.tx, true, func(bool) { s.mu.Unlock() }, nil
	}
	s.mu.Unlock()

	conn, err := s.exec.registry.Acquire(ctx, s.locator)
	if err != nil {
		return nil, false, nil, err
	}
	return conn, false, func(broken bool) {
		s.exec.registry.Release(ctx, conn, broken)
	}, nil
}

func (s *Session) execute(ctx context.Context, conn datasource.Conn, req request, bound *binder.Bound) (result, error) {
	stmt, err := conn.Prepare(ctx, bound.SQL)
	if err != nil {
		return result{}, wrapExecution(err, "prepare failed", bound.SQL)
	}
	defer stmt.Close()

	for i, arg := range bound.Args {
		if err := stmt.Bind(i+1, arg); err != nil {
			return result{}, wrapExecution(err, "bind failed", bound.SQL)
		}
	}

	if req.kind == kindQuery {
		t, err := stmt.Query(ctx)
		if err != nil {
			return result{}, wrapExecution(err, "query failed", bound.SQL)
		}
		return result{table: t}, nil
	}

	n, err := stmt.Exec(ctx)
	if err != nil {
		return result{}, wrapExecution(err, "exec failed", bound.SQL)
	}
	res := result{affected: n}
	if req.followUp != "" {
		t, err := queryOn(ctx, conn, req.followUp)
		if err != nil {
			return result{}, err
		}
		res.id, _ = t.First()
	}
	return res, nil
}

// subquery resolves a Subquery variable on the connection of the statement
// that references it.
func (s *Session) subquery(ctx context.Context, conn datasource.Conn, query string) (interface{}, error) {
	st := statements.Resolve(s.exec.source, query)
	t, err := queryOn(ctx, conn, st.SQL)
	if err != nil {
		return nil, err
	}
	v, _ := t.First()
	return v, nil
}

func queryOn(ctx context.Context, conn datasource.Conn, sql string) (*datasource.Table, error) {
	stmt, err := conn.Prepare(ctx, sql)
	if err != nil {
		return nil, wrapExecution(err, "prepare failed", sql)
	}
	defer stmt.Close()
	t, err := stmt.Query(ctx)
	if err != nil {
		return nil, wrapExecution(err, "query failed", sql)
	}
	return t, nil
}

// cacheKey builds the key from the locator, the statement as written and
// every variable in scope, common ones included.
func cacheKey(locator, template string, vars []*binder.Variable) (cache.CompositeKey, error) {
	parts := make([]interface{}, 0, len(vars)+2)
	parts = append(parts, locator, template)
	for _, v := range vars {
		parts = append(parts, v.KeyPart())
	}
	return cache.NewKey(parts...)
}
