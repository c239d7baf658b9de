package backoff

import (
	"context"
	"math"
	"time"
)

// Exponential implements a backoff strategy that increases the backoff
// duration by a constant factor per attempt, up to a maximum duration.
type Exponential struct {
	BaseBackoff time.Duration // backoff before the first retry
	Factor      float64       // multiplier applied per attempt
	MaxBackoff  time.Duration // ceiling on the backoff duration
}

func NewExponential(baseBackoff time.Duration, factor float64, maxBackoff time.Duration) *Exponential {
	return &Exponential{
		BaseBackoff: baseBackoff,
		Factor:      factor,
		MaxBackoff:  maxBackoff,
	}
}

func (eb *Exponential) BackoffDuration(attempts int) time.Duration {
	if attempts <= 0 {
		return eb.BaseBackoff
	}
	backoff := float64(eb.BaseBackoff) * math.Pow(eb.Factor, float64(attempts))
	if backoff > float64(eb.MaxBackoff) {
		backoff = float64(eb.MaxBackoff)
	}
	return time.Duration(backoff)
}

func (eb *Exponential) Backoff(ctx context.Context, attempts int) {
	select {
	case <-time.After(eb.BackoffDuration(attempts)):
	case <-ctx.Done():
	}
}

// compile time check whether the Exponential implements the Backoff interface.
var _ Backoff = (*Exponential)(nil)
