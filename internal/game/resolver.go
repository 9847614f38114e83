package game

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/metrics"
)

// Resolver periodically settles pools that are full or past their end
// time with a server-side die roll.
type Resolver struct {
	svc      *Service
	interval time.Duration
	log      *zap.Logger
}

func NewResolver(svc *Service, interval time.Duration) *Resolver {
	return &Resolver{svc: svc, interval: interval, log: svc.log.Named("resolver")}
}

// Run sweeps every interval until ctx is done.
func (r *Resolver) Run(ctx context.Context) {
	r.log.Info("resolver started", zap.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("resolver stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep resolves what it can and returns how many pools it settled.
func (r *Resolver) Sweep(ctx context.Context) int {
	pools, err := r.svc.fetchPools(ctx)
	if err != nil {
		r.log.Warn("list pools", zap.Error(err))
		return 0
	}

	now := r.svc.now()
	resolved := 0
	for i := range pools {
		p := &pools[i]
		if !Resolvable(p, now) {
			continue
		}
		res, err := r.svc.RollResult(ctx, p.PoolID.Big())
		if err != nil {
			r.log.Warn("resolve pool", zap.String("pool", p.PoolID.String()), zap.Error(err))
			continue
		}
		resolved++
		metrics.PoolsResolved.Inc()
		r.log.Info("pool resolved",
			zap.String("pool", p.PoolID.String()),
			zap.String("result", res.Result.String()),
			zap.String("tx", res.TxHash))
	}
	return resolved
}
