// Package cache provides the result cache: TTL checked on read, quota
// checked on write.
//
// Entries carry only their insertion time. Freshness is decided by the
// reader, which passes its own TTL to Get, so two readers may disagree on
// whether the same entry is still usable. Nothing expires proactively. When
// a write finds the quota breached the whole cache is dropped before the new
// entry is inserted.
//
// Reads go through an atomically published snapshot and never take a lock.
// Writes, including clears, are serialized. Concurrent writes to the same
// key are last-writer-wins.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/logger"
	"github.com/ajitpratap0/sqlrt/pkg/metrics"
)

type entry struct {
	value      interface{}
	insertedAt time.Time
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries int64  `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Stale   uint64 `json:"stale"`
	Puts    uint64 `json:"puts"`
	Clears  uint64 `json:"clears"`
	Mode    string `json:"mode"`
}

// ResultCache stores query results under composite keys.
type ResultCache struct {
	data  atomic.Pointer[sync.Map]
	size  atomic.Int64
	quota Quota
	clock func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
	stale  atomic.Uint64
	puts   atomic.Uint64
	clears atomic.Uint64

	mu     sync.Mutex
	logger *zap.Logger
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *ResultCache) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *ResultCache) { c.logger = l }
}

// New creates a cache enforcing quota.
func New(quota Quota, opts ...Option) *ResultCache {
	c := &ResultCache{
		quota: quota,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get()
	}
	c.logger = c.logger.With(zap.String("component", "result_cache"))
	c.data.Store(&sync.Map{})
	return c
}

var (
	defaultOnce  sync.Once
	defaultCache *ResultCache
)

// Default returns the process-wide cache, created on first use with a
// 10000 item ceiling.
func Default() *ResultCache {
	defaultOnce.Do(func() {
		defaultCache = New(MaxItems(10000))
	})
	return defaultCache
}

// Get returns the value stored under key if it was inserted less than ttl ago.
func (c *ResultCache) Get(key CompositeKey, ttl time.Duration) (interface{}, bool) {
	v, ok := c.data.Load().Load(key.enc)
	if !ok {
		c.misses.Add(1)
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	e := v.(*entry)
	if c.clock().Sub(e.insertedAt) >= ttl {
		c.stale.Add(1)
		metrics.CacheRequests.WithLabelValues("stale").Inc()
		return nil, false
	}

	c.hits.Add(1)
	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return e.value, true
}

// Put stores value under key. The quota is evaluated first; on breach the
// cache is cleared and then the entry is inserted.
func (c *ResultCache) Put(key CompositeKey, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if breached, reason := c.quota.Breached(c.size.Load()); breached {
		c.logger.Info("cache quota breached, clearing",
			zap.String("mode", c.quota.Mode()),
			zap.String("reason", reason),
			zap.Int64("entries", c.size.Load()))
		c.clearLocked("quota")
	}

	m := c.data.Load()
	if _, loaded := m.Swap(key.enc, &entry{value: value, insertedAt: c.clock()}); !loaded {
		c.size.Add(1)
	}
	c.puts.Add(1)
	metrics.CacheEntries.Set(float64(c.size.Load()))
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked("manual")
}

func (c *ResultCache) clearLocked(reason string) {
	c.data.Store(&sync.Map{})
	c.size.Store(0)
	c.clears.Add(1)
	metrics.CacheClears.WithLabelValues(reason).Inc()
	metrics.CacheEntries.Set(0)
}

// Len returns the number of entries, fresh or not.
func (c *ResultCache) Len() int {
	return int(c.size.Load())
}

// Stats returns the cache counters.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Entries: c.size.Load(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Stale:   c.stale.Load(),
		Puts:    c.puts.Load(),
		Clears:  c.clears.Load(),
		Mode:    c.quota.Mode(),
	}
}
