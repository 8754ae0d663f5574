// Package pool manages self-tuning connection pools, one per locator.
//
// Acquire never blocks on an empty pool: it opens an ad hoc connection
// instead and treats the miss as a signal that the pool is undersized,
// growing its target capacity. A single replenisher goroutine per Registry
// evicts connections that sat idle too long, shrinks pools that were
// oversized and tops every pool back up to its target concurrently.
//
//	reg := pool.NewRegistry(datasource.DefaultDrivers(), pool.DefaultOptions())
//	defer reg.Close(ctx)
//
//	conn, err := reg.Acquire(ctx, "postgres://app@db/orders")
//	if err != nil {
//		return err
//	}
//	broken := use(conn) != nil
//	reg.Release(ctx, conn, broken)
package pool

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/sqlrt/pkg/config"
	"github.com/ajitpratap0/sqlrt/pkg/datasource"
)

// Origin tells where a connection came from.
type Origin int

const (
	// OriginPool connections were opened by the replenisher and return to the idle set.
	OriginPool Origin = iota
	// OriginAdHoc connections were opened on a miss and are closed on release.
	OriginAdHoc
)

func (o Origin) String() string {
	if o == OriginAdHoc {
		return "adhoc"
	}
	return "pool"
}

// Options bound the pools of a registry.
type Options struct {
	MinSize           int
	MaxSize           int
	InitialTarget     int
	GrowthFactor      float64
	IdleTimeout       time.Duration
	ReplenishInterval time.Duration
	// OpenConcurrency limits parallel opens during top-up; 0 means unbounded.
	OpenConcurrency int
}

// DefaultOptions returns the built-in pool bounds.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Pool)
}

// OptionsFromConfig converts configuration into pool options.
func OptionsFromConfig(cfg config.PoolConfig) Options {
	return Options{
		MinSize:           cfg.MinSize,
		MaxSize:           cfg.MaxSize,
		InitialTarget:     cfg.InitialTarget,
		GrowthFactor:      cfg.GrowthFactor,
		IdleTimeout:       cfg.IdleTimeout,
		ReplenishInterval: cfg.ReplenishInterval,
		OpenConcurrency:   cfg.OpenConcurrency,
	}
}

// PooledConn is a connection checked out of a registry. It embeds the
// underlying datasource connection.
type PooledConn struct {
	datasource.Conn

	locator      string
	origin       Origin
	createdAt    time.Time
	lastReturned time.Time
	useCount     int64
}

// Locator returns the locator the connection belongs to.
func (c *PooledConn) Locator() string { return c.locator }

// Origin returns whether the connection is pooled or ad hoc.
func (c *PooledConn) Origin() Origin { return c.origin }

// Stats is a snapshot of one pool.
type Stats struct {
	Locator      string `json:"locator"`
	Idle         int    `json:"idle"`
	Target       int    `json:"target"`
	Min          int    `json:"min"`
	Max          int    `json:"max"`
	Created      int64  `json:"created"`
	Reused       int64  `json:"reused"`
	AdHoc        int64  `json:"adhoc"`
	Evicted      int64  `json:"evicted"`
	OpenFailures int64  `json:"open_failures"`
}

// Pool is the idle set of one locator. Idle connections are owned by the
// pool; ownership moves to the caller on take and back on put.
type Pool struct {
	locator string
	label   string
	opts    Options

	mu     sync.Mutex
	idle   []*PooledConn
	target int

	created      atomic.Int64
	reused       atomic.Int64
	adhoc        atomic.Int64
	evicted      atomic.Int64
	openFailures atomic.Int64
}

func newPool(locator string, opts Options) *Pool {
	return &Pool{
		locator: locator,
		label:   datasource.Redact(locator),
		opts:    opts,
		target:  clamp(opts.InitialTarget, opts.MinSize, opts.MaxSize),
	}
}

// take pops the most recently returned idle connection.
func (p *Pool) take() (*PooledConn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.idle)
	if n == 0 {
		return nil, false
	}
	c := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	c.useCount++
	p.reused.Add(1)
	return c, true
}

// put returns c to the idle set; false means the set is full and the
// caller must close c.
func (p *Pool) put(c *PooledConn, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) >= p.opts.MaxSize {
		return false
	}
	c.lastReturned = now
	p.idle = append(p.idle, c)
	return true
}

// grow applies the exhaustion rule and returns the old and new target.
func (p *Pool) grow() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.target
	next := int(math.Floor(float64(p.target)*p.opts.GrowthFactor)) + 1
	p.target = clamp(next, p.opts.MinSize, p.opts.MaxSize)
	return old, p.target
}

// evict removes connections idle for longer than the timeout and applies
// the shrink rule. The evicted connections are returned for closing.
func (p *Pool) evict(now time.Time) (evicted []*PooledConn, oldTarget, newTarget int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.idle[:0]
	for _, c := range p.idle {
		if now.Sub(c.lastReturned) > p.opts.IdleTimeout {
			evicted = append(evicted, c)
		} else {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept

	oldTarget = p.target
	if len(evicted) > 0 && p.target > p.opts.MinSize {
		p.target = clamp(p.target-len(evicted)/2, p.opts.MinSize, p.opts.MaxSize)
	}
	return evicted, oldTarget, p.target
}

// deficit is the number of connections needed to reach the target.
func (p *Pool) deficit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d := p.target - len(p.idle); d > 0 {
		return d
	}
	return 0
}

func (p *Pool) drain() []*PooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.idle
	p.idle = nil
	return out
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle, target := len(p.idle), p.target
	p.mu.Unlock()

	return Stats{
		Locator:      p.label,
		Idle:         idle,
		Target:       target,
		Min:          p.opts.MinSize,
		Max:          p.opts.MaxSize,
		Created:      p.created.Load(),
		Reused:       p.reused.Load(),
		AdHoc:        p.adhoc.Load(),
		Evicted:      p.evicted.Load(),
		OpenFailures: p.openFailures.Load(),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
