package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/sqlrt/pkg/metrics"
)

// start launches the replenisher loop. The first cycle runs immediately.
func (r *Registry) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.loop(ctx)
}

func (r *Registry) loop(ctx context.Context) {
	defer close(r.done)
	defer r.cancel()

	ticker := time.NewTicker(r.opts.ReplenishInterval)
	defer ticker.Stop()

	r.Replenish(ctx)
	for {
		select {
		case <-ticker.C:
			r.Replenish(ctx)
		case <-r.kick:
			r.Replenish(ctx)
		case <-r.stopCh:
			return
		}
	}
}

// wake asks the replenisher for an early cycle, used when a new pool is
// registered so it does not wait a full period for its first fill.
func (r *Registry) wake() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Replenish runs one maintenance cycle over every pool: evict stale idle
// connections, shrink oversized pools, then top each pool up to its target.
// Failures are logged and never returned.
func (r *Registry) Replenish(ctx context.Context) {
	for _, p := range r.snapshot() {
		if ctx.Err() != nil {
			return
		}
		r.evict(ctx, p)
		r.topUp(ctx, p)
		metrics.PoolIdle.WithLabelValues(p.label).Set(float64(p.Stats().Idle))
	}
}

func (r *Registry) evict(ctx context.Context, p *Pool) {
	evicted, oldTarget, newTarget := p.evict(r.clock())
	if len(evicted) == 0 {
		return
	}

	for _, c := range evicted {
		if err := c.Close(ctx); err != nil {
			r.logger.Warn("failed to close evicted connection", zap.String("pool", p.label), zap.Error(err))
		}
	}
	p.evicted.Add(int64(len(evicted)))
	metrics.PoolEvictions.WithLabelValues(p.label).Add(float64(len(evicted)))

	if newTarget != oldTarget {
		metrics.PoolResizes.WithLabelValues(p.label, "shrink").Inc()
		metrics.PoolTarget.WithLabelValues(p.label).Set(float64(newTarget))
		r.logger.Info("pool oversized, shrinking target",
			zap.String("pool", p.label),
			zap.Int("evicted", len(evicted)),
			zap.Int("old_target", oldTarget),
			zap.Int("new_target", newTarget))
	} else {
		r.logger.Debug("evicted idle connections", zap.String("pool", p.label), zap.Int("evicted", len(evicted)))
	}
}

// topUp opens the missing connections in parallel and waits for all of them.
// Each open failure is logged on its own; a partial fill is fine.
func (r *Registry) topUp(ctx context.Context, p *Pool) {
	need := p.deficit()
	if need == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if r.opts.OpenConcurrency > 0 {
		g.SetLimit(r.opts.OpenConcurrency)
	}

	for i := 0; i < need; i++ {
		g.Go(func() error {
			conn, err := r.opener.Open(gctx, p.locator)
			if err != nil {
				p.openFailures.Add(1)
				metrics.PoolOpens.WithLabelValues(p.label, OriginPool.String(), "failure").Inc()
				r.logger.Warn("failed to open pooled connection", zap.String("pool", p.label), zap.Error(err))
				return nil
			}

			now := r.clock()
			c := &PooledConn{Conn: conn, locator: p.locator, origin: OriginPool, createdAt: now}
			if !p.put(c, now) {
				_ = conn.Close(gctx)
				return nil
			}
			p.created.Add(1)
			metrics.PoolOpens.WithLabelValues(p.label, OriginPool.String(), "success").Inc()
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Debug("pool topped up", zap.String("pool", p.label), zap.Int("requested", need), zap.Int("idle", p.Stats().Idle))
}
