package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLatencyTracker(t *testing.T) {
	lt := NewLatencyTracker(4)
	for _, ms := range []int{50, 10, 40, 20, 30} {
		lt.Record(time.Duration(ms) * time.Millisecond)
	}

	// the first value fell out of the window
	assert.Equal(t, 4, lt.Count())
	assert.Equal(t, 10*time.Millisecond, lt.GetPercentile(0))
	assert.Equal(t, 30*time.Millisecond, lt.GetPercentile(50))
	assert.Equal(t, 40*time.Millisecond, lt.GetPercentile(100))
}

func TestLatencyTracker_Empty(t *testing.T) {
	assert.Equal(t, time.Duration(0), NewLatencyTracker(0).GetPercentile(99))
}

func TestCollectorsRegistered(t *testing.T) {
	before := testutil.ToFloat64(CacheRequests.WithLabelValues("hit"))
	CacheRequests.WithLabelValues("hit").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CacheRequests.WithLabelValues("hit")))

	PoolTarget.WithLabelValues("postgres://db/x").Set(12)
	assert.Equal(t, float64(12), testutil.ToFloat64(PoolTarget.WithLabelValues("postgres://db/x")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("op")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "op", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
