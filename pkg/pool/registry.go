package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/datasource"
	"github.com/ajitpratap0/sqlrt/pkg/errors"
	"github.com/ajitpratap0/sqlrt/pkg/logger"
	"github.com/ajitpratap0/sqlrt/pkg/metrics"
)

// Opener opens physical connections. *datasource.Drivers satisfies it.
type Opener interface {
	Open(ctx context.Context, locator string) (datasource.Conn, error)
}

// Registry maps locators to pools and runs their replenisher.
type Registry struct {
	opener Opener
	opts   Options
	logger *zap.Logger
	clock  func() time.Time

	mu     sync.Mutex
	pools  map[string]*Pool
	closed bool

	startOnce sync.Once
	kick      chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the time source used for idle ages.
func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry creates a registry. The replenisher starts on the first Acquire.
func NewRegistry(opener Opener, opts Options, options ...RegistryOption) *Registry {
	r := &Registry{
		opener: opener,
		opts:   opts,
		clock:  time.Now,
		pools:  make(map[string]*Pool),
		kick:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range options {
		o(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	r.logger = r.logger.With(zap.String("component", "pool_registry"))
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry over the built-in drivers.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(datasource.DefaultDrivers(), DefaultOptions())
	})
	return defaultRegistry
}

// Acquire returns an idle connection for locator or, when none is idle, a
// freshly opened ad hoc one. It never waits for a connection to be released.
func (r *Registry) Acquire(ctx context.Context, locator string) (*PooledConn, error) {
	p, existed, err := r.poolFor(locator)
	if err != nil {
		return nil, err
	}
	r.startOnce.Do(r.start)

	if c, ok := p.take(); ok {
		return c, nil
	}

	if existed {
		if old, next := p.grow(); next != old {
			metrics.PoolResizes.WithLabelValues(p.label, "grow").Inc()
			metrics.PoolTarget.WithLabelValues(p.label).Set(float64(next))
			r.logger.Info("pool exhausted, growing target",
				zap.String("pool", p.label),
				zap.Int("old_target", old),
				zap.Int("new_target", next))
		}
	} else {
		r.wake()
	}

	conn, err := r.opener.Open(ctx, locator)
	if err != nil {
		p.openFailures.Add(1)
		metrics.PoolOpens.WithLabelValues(p.label, OriginAdHoc.String(), "failure").Inc()
		if !errors.IsType(err, errors.ErrorTypeConnection) && !errors.IsType(err, errors.ErrorTypeConfig) {
			err = errors.Wrap(err, errors.ErrorTypeConnection, "failed to open connection")
		}
		return nil, err
	}
	p.adhoc.Add(1)
	metrics.PoolOpens.WithLabelValues(p.label, OriginAdHoc.String(), "success").Inc()

	now := r.clock()
	return &PooledConn{Conn: conn, locator: locator, origin: OriginAdHoc, createdAt: now, lastReturned: now, useCount: 1}, nil
}

// Release hands c back. Healthy pooled connections rejoin the idle set;
// ad hoc and broken connections are closed.
func (r *Registry) Release(ctx context.Context, c *PooledConn, broken bool) {
	if c == nil {
		return
	}

	if c.origin == OriginPool && !broken {
		r.mu.Lock()
		p, ok := r.pools[c.locator]
		closed := r.closed
		r.mu.Unlock()

		if ok && !closed && p.put(c, r.clock()) {
			return
		}
	}

	if err := c.Close(ctx); err != nil {
		r.logger.Warn("failed to close connection",
			zap.String("pool", datasource.Redact(c.locator)),
			zap.Stringer("origin", c.origin),
			zap.Bool("broken", broken),
			zap.Error(err))
	}
}

// Pool returns the pool registered for locator.
func (r *Registry) Pool(locator string) (*Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[locator]
	return p, ok
}

// Stats returns a snapshot of every pool ordered by locator.
func (r *Registry) Stats() []Stats {
	pools := r.snapshot()
	out := make([]Stats, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Locator < out[j].Locator })
	return out
}

// Close stops the replenisher and closes every idle connection. Checked out
// connections are closed when released.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	// make sure a replenisher can no longer start, then stop a running one
	r.startOnce.Do(func() { close(r.done) })
	if r.cancel != nil {
		r.cancel()
	}
	close(r.stopCh)
	<-r.done

	closedConns := 0
	for _, p := range r.snapshot() {
		for _, c := range p.drain() {
			if err := c.Close(ctx); err != nil {
				r.logger.Warn("failed to close idle connection", zap.String("pool", p.label), zap.Error(err))
			}
			closedConns++
		}
		metrics.PoolIdle.WithLabelValues(p.label).Set(0)
	}

	r.logger.Info("pool registry closed", zap.Int("closed_connections", closedConns))
	return nil
}

func (r *Registry) poolFor(locator string) (*Pool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, errors.New(errors.ErrorTypeConnection, "pool registry is closed").
			WithDetail("locator", datasource.Redact(locator))
	}
	if p, ok := r.pools[locator]; ok {
		return p, true, nil
	}

	p := newPool(locator, r.opts)
	r.pools[locator] = p
	metrics.PoolTarget.WithLabelValues(p.label).Set(float64(p.target))
	r.logger.Debug("registered pool", zap.String("pool", p.label), zap.Int("target", p.target))
	return p, false, nil
}

func (r *Registry) snapshot() []*Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	return out
}
