package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sqlrt/pkg/errors"
	"github.com/ajitpratap0/sqlrt/pkg/testutil"
)

const testLocator = "fake://db/orders"

func testOptions() Options {
	return Options{
		MinSize:           5,
		MaxSize:           50,
		InitialTarget:     10,
		GrowthFactor:      1.1,
		IdleTimeout:       30 * time.Second,
		ReplenishInterval: time.Hour,
	}
}

// newManualRegistry returns a registry whose background replenisher never
// starts; tests drive cycles with Replenish.
func newManualRegistry(t *testing.T, opts Options) (*Registry, *testutil.FakeDriver, *testutil.Clock) {
	drv := testutil.NewFakeDriver()
	clock := testutil.NewClock()
	r := NewRegistry(drv, opts, WithLogger(testutil.TestLogger(t)), WithClock(clock.Now))
	r.startOnce.Do(func() {})
	close(r.done)
	return r, drv, clock
}

func TestAcquire_FirstUseOpensAdHoc(t *testing.T) {
	r, drv, _ := newManualRegistry(t, testOptions())
	ctx := context.Background()

	c, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	assert.Equal(t, OriginAdHoc, c.Origin())
	assert.Equal(t, testLocator, c.Locator())
	assert.Equal(t, 1, drv.Opens())

	p, ok := r.Pool(testLocator)
	require.True(t, ok)
	st := p.Stats()
	assert.Equal(t, 0, st.Idle)
	assert.Equal(t, 10, st.Target, "registration alone does not grow the target")
	assert.Equal(t, int64(1), st.AdHoc)
}

func TestAcquire_ExhaustionGrowsTarget(t *testing.T) {
	r, _, _ := newManualRegistry(t, testOptions())
	ctx := context.Background()

	targets := []int{10, 12, 14, 16}
	for i, want := range targets {
		_, err := r.Acquire(ctx, testLocator)
		require.NoError(t, err)
		p, _ := r.Pool(testLocator)
		assert.Equal(t, want, p.Stats().Target, "after acquire %d", i+1)
	}
}

func TestAcquire_GrowthCappedAtMax(t *testing.T) {
	opts := testOptions()
	opts.MaxSize = 11
	r, _, _ := newManualRegistry(t, opts)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Acquire(ctx, testLocator)
		require.NoError(t, err)
	}
	p, _ := r.Pool(testLocator)
	assert.Equal(t, 11, p.Stats().Target)
}

func TestAcquire_OpenFailure(t *testing.T) {
	r, drv, _ := newManualRegistry(t, testOptions())
	drv.SetOpenError(fmt.Errorf("connection refused"))

	_, err := r.Acquire(context.Background(), testLocator)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.True(t, errors.IsRetryable(err))
}

func TestReplenish_TopsUpAndReuses(t *testing.T) {
	r, drv, _ := newManualRegistry(t, testOptions())
	ctx := context.Background()

	adhoc, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)

	r.Replenish(ctx)
	p, _ := r.Pool(testLocator)
	assert.Equal(t, 10, p.Stats().Idle)
	assert.Equal(t, int64(10), p.Stats().Created)
	assert.Equal(t, 11, drv.Opens())

	c, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	assert.Equal(t, OriginPool, c.Origin())
	assert.Equal(t, 9, p.Stats().Idle)
	assert.Equal(t, int64(1), p.Stats().Reused)

	r.Release(ctx, c, false)
	assert.Equal(t, 10, p.Stats().Idle, "healthy pooled connection rejoins the idle set")

	r.Release(ctx, adhoc, false)
	assert.Equal(t, 10, p.Stats().Idle, "ad hoc connections never join the idle set")
	assert.Equal(t, 1, drv.Closes())
}

func TestRelease_BrokenPooledConnectionIsClosed(t *testing.T) {
	r, drv, _ := newManualRegistry(t, testOptions())
	ctx := context.Background()

	_, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	r.Replenish(ctx)

	c, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	require.Equal(t, OriginPool, c.Origin())

	r.Release(ctx, c, true)
	p, _ := r.Pool(testLocator)
	assert.Equal(t, 9, p.Stats().Idle)
	assert.Equal(t, 1, drv.Closes())
}

func TestRelease_IdleSetNeverExceedsMax(t *testing.T) {
	opts := testOptions()
	opts.MinSize, opts.InitialTarget, opts.MaxSize = 1, 2, 2
	r, drv, _ := newManualRegistry(t, opts)
	ctx := context.Background()

	_, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	r.Replenish(ctx)

	conn, err := drv.Open(ctx, testLocator)
	require.NoError(t, err)
	extra := &PooledConn{Conn: conn, locator: testLocator, origin: OriginPool}
	r.Release(ctx, extra, false)

	p, _ := r.Pool(testLocator)
	assert.Equal(t, 2, p.Stats().Idle)
	assert.Equal(t, 1, drv.Closes())
}

func TestReplenish_EvictsAndShrinks(t *testing.T) {
	r, drv, clock := newManualRegistry(t, testOptions())
	ctx := context.Background()

	_, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	r.Replenish(ctx)
	p, _ := r.Pool(testLocator)
	require.Equal(t, 10, p.Stats().Idle)

	clock.Advance(20 * time.Second)
	r.Replenish(ctx)
	assert.Equal(t, int64(0), p.Stats().Evicted, "nothing is older than the idle timeout yet")

	clock.Advance(11 * time.Second)
	r.Replenish(ctx)

	st := p.Stats()
	assert.Equal(t, int64(10), st.Evicted)
	assert.Equal(t, 5, st.Target, "target shrinks by half the evictions")
	assert.Equal(t, 5, st.Idle, "and the pool is topped up to the new target")
	assert.Equal(t, 10, drv.Closes())
}

func TestReplenish_ShrinkFlooredAtMin(t *testing.T) {
	opts := testOptions()
	opts.InitialTarget = 6
	r, _, clock := newManualRegistry(t, opts)
	ctx := context.Background()

	_, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	r.Replenish(ctx)

	clock.Advance(time.Minute)
	r.Replenish(ctx)

	p, _ := r.Pool(testLocator)
	assert.Equal(t, 5, p.Stats().Target)
}

func TestReplenish_NoShrinkAtMin(t *testing.T) {
	opts := testOptions()
	opts.InitialTarget = 5
	r, _, clock := newManualRegistry(t, opts)
	ctx := context.Background()

	_, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	r.Replenish(ctx)
	clock.Advance(time.Minute)
	r.Replenish(ctx)

	p, _ := r.Pool(testLocator)
	st := p.Stats()
	assert.Equal(t, 5, st.Target)
	assert.Equal(t, int64(5), st.Evicted)
	assert.Equal(t, 5, st.Idle)
}

func TestReplenish_PartialFillOnOpenFailures(t *testing.T) {
	r, drv, _ := newManualRegistry(t, testOptions())
	ctx := context.Background()

	_, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)

	var mu sync.Mutex
	attempts := 0
	drv.OnOpen(func(string) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
	})
	drv.SetOpenError(fmt.Errorf("too many connections"))

	assert.NotPanics(t, func() { r.Replenish(ctx) })

	p, _ := r.Pool(testLocator)
	st := p.Stats()
	assert.Equal(t, 0, st.Idle)
	assert.Equal(t, int64(10), st.OpenFailures)
	mu.Lock()
	assert.Equal(t, 10, attempts)
	mu.Unlock()

	drv.SetOpenError(nil)
	r.Replenish(ctx)
	assert.Equal(t, 10, p.Stats().Idle)
}

func TestReplenish_ConcurrencyLimit(t *testing.T) {
	opts := testOptions()
	opts.OpenConcurrency = 2
	r, _, _ := newManualRegistry(t, opts)
	ctx := context.Background()

	_, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	r.Replenish(ctx)

	p, _ := r.Pool(testLocator)
	assert.Equal(t, 10, p.Stats().Idle)
}

func TestRegistry_BackgroundReplenisher(t *testing.T) {
	drv := testutil.NewFakeDriver()
	r := NewRegistry(drv, testOptions(), WithLogger(testutil.TestLogger(t)))
	ctx := context.Background()

	c, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	assert.Equal(t, OriginAdHoc, c.Origin(), "acquire on an empty pool does not wait for the replenisher")

	testutil.AssertEventually(t, func() bool {
		p, _ := r.Pool(testLocator)
		return p.Stats().Idle == 10
	}, 5*time.Second, "pool filled within one replenish cycle")

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, 1, drv.Live(), "only the checked out connection is still open")

	r.Release(ctx, c, false)
	assert.Equal(t, 0, drv.Live())

	_, err = r.Acquire(ctx, testLocator)
	assert.Error(t, err)
	assert.NoError(t, r.Close(ctx), "close is idempotent")
}

func TestRegistry_CloseWithoutStart(t *testing.T) {
	r := NewRegistry(testutil.NewFakeDriver(), testOptions(), WithLogger(testutil.TestLogger(t)))
	assert.NoError(t, r.Close(context.Background()))
}

func TestRegistry_Stats(t *testing.T) {
	r, _, _ := newManualRegistry(t, testOptions())
	ctx := context.Background()

	_, err := r.Acquire(ctx, "fake://user:secret@b/db")
	require.NoError(t, err)
	_, err = r.Acquire(ctx, "fake://a/db")
	require.NoError(t, err)

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "fake://a/db", stats[0].Locator)
	assert.Equal(t, "fake://user@b/db", stats[1].Locator)
	for _, st := range stats {
		assert.NotContains(t, st.Locator, "secret")
		assert.Equal(t, 5, st.Min)
		assert.Equal(t, 50, st.Max)
	}
}

func TestRegistry_ConcurrentAcquireRelease(t *testing.T) {
	r, drv, _ := newManualRegistry(t, testOptions())
	ctx := context.Background()

	_, err := r.Acquire(ctx, testLocator)
	require.NoError(t, err)
	r.Replenish(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c, err := r.Acquire(ctx, testLocator)
				if err != nil {
					t.Error(err)
					return
				}
				r.Release(ctx, c, false)
			}
		}()
	}
	wg.Wait()

	p, _ := r.Pool(testLocator)
	st := p.Stats()
	assert.LessOrEqual(t, st.Idle, st.Max)
	assert.LessOrEqual(t, st.Target, st.Max)
	assert.GreaterOrEqual(t, st.Target, st.Min)
	// every connection is either idle or was closed
	assert.Equal(t, st.Idle+1, drv.Live())
}
