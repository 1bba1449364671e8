// Package ratelimit gates inbound LNS traffic and paces WebSocket reconnect
// attempts, the way the gateway-server side of this protocol gates inbound
// gateway traffic before it reaches message dispatch.
package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter for a single named resource (e.g.
// "lns:dispatch").
type Limiter struct {
	resource string
	limiter  *rate.Limiter
}

// New returns a Limiter allowing up to rps events per second, with the given
// burst.
func New(resource string, rps float64, burst int) *Limiter {
	return &Limiter{
		resource: resource,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Require blocks until an event may proceed, or ctx is done.
func (l *Limiter) Require(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may proceed right now, without blocking.
func (l *Limiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// Jitter returns d scaled by a uniform random factor in [1-frac, 1+frac],
// used to desynchronise periodic timers (ping, time-sync, reconnect) across
// a fleet of stations.
func Jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * frac
	return time.Duration(float64(d) * (1 + delta))
}

// ReconnectBackoff computes the delay before reconnect attempt n (0-based),
// doubling from base up to a cap, with jitter applied.
func ReconnectBackoff(n int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	return Jitter(d, 0.2)
}
