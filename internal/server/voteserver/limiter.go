package voteserver

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/votifier-go/pkg/cmap"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// limiterRegistry keeps one token bucket per remote IP.
type limiterRegistry struct {
	limit rate.Limit
	burst int
	byIP  *cmap.Map[*ipLimiter]
}

func newLimiterRegistry(perSecond float64, burst int) *limiterRegistry {
	if burst <= 0 {
		burst = int(math.Ceil(perSecond))
	}
	return &limiterRegistry{
		limit: rate.Limit(perSecond),
		burst: burst,
		byIP:  cmap.New[*ipLimiter](),
	}
}

// allow reports whether a new connection from ip may proceed.
func (r *limiterRegistry) allow(ip string) bool {
	l, ok := r.byIP.Get(ip)
	if !ok {
		l, _ = r.byIP.GetOrSet(ip, &ipLimiter{limiter: rate.NewLimiter(r.limit, r.burst)})
	}
	l.lastSeen.Store(time.Now().UnixNano())
	return l.limiter.Allow()
}

// sweep drops limiters idle since before cutoff.
func (r *limiterRegistry) sweep(cutoff time.Time) int {
	c := cutoff.UnixNano()
	return r.byIP.DeleteIf(func(_ string, l *ipLimiter) bool {
		return l.lastSeen.Load() < c
	})
}

func (r *limiterRegistry) sweepLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			r.sweep(now.Add(-limiterIdleTTL))
		}
	}
}
