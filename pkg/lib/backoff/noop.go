package backoff

import (
	"context"
	"time"
)

// Noop is a backoff strategy that never delays, whatever the attempt count.
// Useful in tests and anywhere retry pacing is handled elsewhere.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (b *Noop) BackoffDuration(attempts int) time.Duration {
	return 0
}

func (b *Noop) Backoff(ctx context.Context, attempts int) {}

var _ Backoff = (*Noop)(nil)
