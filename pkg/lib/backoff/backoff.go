package backoff

import (
	"context"
	"time"
)

// Backoff is a strategy for delaying retries of an operation.
type Backoff interface {
	// Backoff blocks for the duration appropriate for the given attempt
	// count, or until the context is done.
	Backoff(ctx context.Context, attempts int)
	// BackoffDuration returns the delay for the given attempt count without
	// blocking.
	BackoffDuration(attempts int) time.Duration
}
