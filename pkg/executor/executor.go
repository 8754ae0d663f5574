// Package executor runs templated statements against pooled connections.
//
// One execution walks a fixed pipeline:
//
//	resolve statement key -> cache lookup -> acquire connection
//	-> expand expression blocks -> interceptor -> page/count rewrite
//	-> bind variables -> execute -> release connection -> store result
//
// Callers work through a Session, which owns the optional transaction of a
// locator:
//
//	exec, _ := executor.FromConfig(cfg)
//	s := exec.Session("postgres://app@db/orders")
//	rows, err := s.Query(ctx, "SELECT id FROM orders WHERE customer = ?customer",
//		binder.Fixed("customer", 42))
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/binder"
	"github.com/ajitpratap0/sqlrt/pkg/cache"
	"github.com/ajitpratap0/sqlrt/pkg/config"
	"github.com/ajitpratap0/sqlrt/pkg/datasource"
	"github.com/ajitpratap0/sqlrt/pkg/logger"
	"github.com/ajitpratap0/sqlrt/pkg/metrics"
	"github.com/ajitpratap0/sqlrt/pkg/pool"
	"github.com/ajitpratap0/sqlrt/pkg/statements"
)

// Drivers opens connections and reports the placeholder style per locator.
// *datasource.Drivers satisfies it.
type Drivers interface {
	pool.Opener
	Placeholder(locator string) binder.Style
}

// StatementInfo is handed to the Interceptor after expansion. The
// interceptor may rewrite SQL.
type StatementInfo struct {
	Locator   string
	SQL       string
	Variables []*binder.Variable
}

// Interceptor observes or rewrites a statement before binding. Its errors
// and panics are logged and otherwise ignored.
type Interceptor func(ctx context.Context, info *StatementInfo) error

// Executor sequences pool, cache, expander and binder around statement
// execution. It is safe for concurrent use; Sessions are not.
type Executor struct {
	drivers      Drivers
	registry     *pool.Registry
	ownsRegistry bool
	poolOpts     pool.Options
	cache        *cache.ResultCache
	binder       *binder.Binder
	source       statements.Source
	interceptor  Interceptor
	common       []*binder.Variable
	logger       *zap.Logger

	latency  *metrics.LatencyTracker
	sessions atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
	hits     atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithDrivers sets the driver router used to open connections.
func WithDrivers(d Drivers) Option {
	return func(e *Executor) { e.drivers = d }
}

// WithRegistry shares an existing pool registry. The executor does not
// close it.
func WithRegistry(r *pool.Registry) Option {
	return func(e *Executor) { e.registry = r }
}

// WithPoolOptions sets the bounds of the registry the executor creates.
func WithPoolOptions(o pool.Options) Option {
	return func(e *Executor) { e.poolOpts = o }
}

// WithCache sets the result cache.
func WithCache(c *cache.ResultCache) Option {
	return func(e *Executor) { e.cache = c }
}

// WithBinder sets the variable binder.
func WithBinder(b *binder.Binder) Option {
	return func(e *Executor) { e.binder = b }
}

// WithStatements sets the keyed statement source.
func WithStatements(src statements.Source) Option {
	return func(e *Executor) { e.source = src }
}

// WithInterceptor installs a statement interceptor.
func WithInterceptor(fn Interceptor) Option {
	return func(e *Executor) { e.interceptor = fn }
}

// WithCommon adds variables visible to every session of the executor.
func WithCommon(vars ...*binder.Variable) Option {
	return func(e *Executor) { e.common = append(e.common, vars...) }
}

// WithLogger sets the executor logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an executor. Unset collaborators default to the built-in
// drivers, a private pool registry, the process-wide cache and a fail-fast
// binder.
func New(opts ...Option) *Executor {
	e := &Executor{
		poolOpts: pool.DefaultOptions(),
		latency:  metrics.NewLatencyTracker(1024),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logger.Get()
	}
	base := e.logger
	e.logger = base.With(zap.String("component", "executor"))

	if e.drivers == nil {
		e.drivers = datasource.DefaultDrivers()
	}
	if e.registry == nil {
		e.registry = pool.NewRegistry(e.drivers, e.poolOpts, pool.WithLogger(base))
		e.ownsRegistry = true
	}
	if e.cache == nil {
		e.cache = cache.Default()
	}
	if e.binder == nil {
		e.binder = binder.New(binder.Options{Unresolved: binder.PolicyFail})
	}
	return e
}

// FromConfig creates an executor from configuration. opts are applied after
// the configured collaborators and may replace them.
func FromConfig(cfg *config.Config, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rc, err := cache.FromConfig(cfg.Cache)
	if err != nil {
		return nil, err
	}
	policy, err := binder.ParsePolicy(cfg.Binder.UnresolvedTokens)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithPoolOptions(pool.OptionsFromConfig(cfg.Pool)),
		WithCache(rc),
		WithBinder(binder.New(binder.Options{
			CaseInsensitive: cfg.Binder.CaseInsensitive,
			Unresolved:      policy,
		})),
	}
	if len(cfg.Statements.Files) > 0 {
		src, err := statements.FromConfig(cfg.Statements)
		if err != nil {
			return nil, err
		}
		base = append(base, WithStatements(src))
	}

	return New(append(base, opts...)...), nil
}

var (
	defaultOnce     sync.Once
	defaultExecutor *Executor
)

// Default returns the process-wide executor over pool.Default() and
// cache.Default().
func Default() *Executor {
	defaultOnce.Do(func() {
		defaultExecutor = New(WithRegistry(pool.Default()), WithCache(cache.Default()))
	})
	return defaultExecutor
}

// Registry returns the pool registry.
func (e *Executor) Registry() *pool.Registry { return e.registry }

// Cache returns the result cache.
func (e *Executor) Cache() *cache.ResultCache { return e.cache }

// Stats is a snapshot of executor activity.
type Stats struct {
	Sessions   int64         `json:"sessions"`
	Executed   int64         `json:"executed"`
	Failed     int64         `json:"failed"`
	CacheHits  int64         `json:"cache_hits"`
	LatencyP50 time.Duration `json:"latency_p50"`
	LatencyP99 time.Duration `json:"latency_p99"`
}

// Stats returns counters and latency percentiles of recent executions.
func (e *Executor) Stats() Stats {
	return Stats{
		Sessions:   e.sessions.Load(),
		Executed:   e.executed.Load(),
		Failed:     e.failed.Load(),
		CacheHits:  e.hits.Load(),
		LatencyP50: e.latency.GetPercentile(50),
		LatencyP99: e.latency.GetPercentile(99),
	}
}

// Close closes the registry if the executor created it.
func (e *Executor) Close(ctx context.Context) error {
	if e.ownsRegistry {
		return e.registry.Close(ctx)
	}
	return nil
}

// intercept runs the interceptor, swallowing its failures.
func (e *Executor) intercept(ctx context.Context, info *StatementInfo, log *zap.Logger) {
	if e.interceptor == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("statement interceptor panicked", zap.Any("panic", r))
		}
	}()
	if err := e.interceptor(ctx, info); err != nil {
		log.Warn("statement interceptor failed", zap.Error(err))
	}
}
