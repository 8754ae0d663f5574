// Package metrics provides Prometheus instrumentation for sqlrt.
//
// # Overview
//
// The package exposes pre-registered collectors for the three runtime
// subsystems and the statement executor:
//   - connection pools: idle size, target capacity, opens, evictions, resizes
//   - result cache: hits, misses, stale reads, quota clears, entry count
//   - executor: executed statements by kind and status, latency, transactions
//
// # Basic Usage
//
//	timer := metrics.NewTimer("query")
//	table, err := stmt.Query(ctx)
//	metrics.StatementLatency.WithLabelValues("query").Observe(timer.Stop().Seconds())
//
// Pool label values are redacted locators (scheme, host and database only) so
// credentials never reach the metrics endpoint.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolIdle tracks idle connections per pool.
	PoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlrt_pool_idle_connections",
			Help: "Number of idle connections held by a pool",
		},
		[]string{"pool"},
	)

	// PoolTarget tracks the adaptive target capacity per pool.
	PoolTarget = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlrt_pool_target_connections",
			Help: "Current target capacity of a pool",
		},
		[]string{"pool"},
	)

	// PoolOpens counts connection opens.
	// Labels: pool, origin (pool/adhoc), status (success/failure)
	PoolOpens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrt_pool_opens_total",
			Help: "Total number of connections opened",
		},
		[]string{"pool", "origin", "status"},
	)

	// PoolEvictions counts idle connections evicted for age.
	PoolEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrt_pool_evictions_total",
			Help: "Total number of idle connections evicted",
		},
		[]string{"pool"},
	)

	// PoolResizes counts target capacity changes.
	// Labels: pool, direction (grow/shrink)
	PoolResizes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrt_pool_resizes_total",
			Help: "Total number of pool target capacity changes",
		},
		[]string{"pool", "direction"},
	)

	// CacheRequests counts result cache reads.
	// Labels: result (hit/miss/stale)
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrt_cache_requests_total",
			Help: "Total number of result cache reads",
		},
		[]string{"result"},
	)

	// CacheClears counts wholesale cache clears.
	// Labels: reason (quota/manual)
	CacheClears = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrt_cache_clears_total",
			Help: "Total number of result cache clears",
		},
		[]string{"reason"},
	)

	// CacheEntries tracks the number of cached results.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlrt_cache_entries",
			Help: "Number of entries in the result cache",
		},
	)

	// StatementsExecuted counts executed statements.
	// Labels: kind (query/exec), status (success/failure)
	StatementsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrt_statements_executed_total",
			Help: "Total number of statements executed against a data source",
		},
		[]string{"kind", "status"},
	)

	// StatementLatency tracks statement execution latency in seconds.
	StatementLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlrt_statement_latency_seconds",
			Help:    "Statement execution latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"kind"},
	)

	// Transactions counts transaction state transitions.
	// Labels: outcome (begin/commit/rollback/failed)
	Transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrt_transactions_total",
			Help: "Total number of transaction state transitions",
		},
		[]string{"outcome"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// LatencyTracker keeps a bounded window of recent latencies for percentile
// reporting. Safe for concurrent use.
type LatencyTracker struct {
	mu      sync.Mutex
	values  []time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker keeping the last maxSize values.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LatencyTracker{
		values:  make([]time.Duration, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record records a latency value
func (l *LatencyTracker) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.values) >= l.maxSize {
		l.values = l.values[1:]
	}
	l.values = append(l.values, d)
}

// Count returns the number of values in the window.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

// GetPercentile returns the percentile value (0-100) over the window.
func (l *LatencyTracker) GetPercentile(p float64) time.Duration {
	l.mu.Lock()
	sorted := make([]time.Duration, len(l.values))
	copy(sorted, l.values)
	l.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(float64(len(sorted)) * p / 100)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	return sorted[index]
}
