// Package ratelimit paces publish loops.
package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter paces one connection's publishes. A nil *Limiter never blocks,
// which is what an unlimited rate yields.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a limiter allowing perSecond events per second, or nil when
// perSecond is not positive. The burst is the rate rounded up, so a
// connection starts publishing immediately but never exceeds one second's
// worth of messages ahead of schedule.
func New(perSecond float64) *Limiter {
	if perSecond <= 0 || math.IsInf(perSecond, 1) || math.IsNaN(perSecond) {
		return nil
	}
	burst := int(math.Ceil(perSecond))
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until the next event is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Limit returns the configured rate, 0 when unlimited.
func (l *Limiter) Limit() float64 {
	if l == nil {
		return 0
	}
	return float64(l.limiter.Limit())
}
