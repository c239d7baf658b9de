package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffDuration(t *testing.T) {
	b := NewExponential(2*time.Second, 1.5, 30*time.Second)

	require.Equal(t, 2*time.Second, b.BackoffDuration(0))
	require.Equal(t, 3*time.Second, b.BackoffDuration(1))
	require.Equal(t, 4500*time.Millisecond, b.BackoffDuration(2))

	// strictly non-decreasing up to the cap
	previous := time.Duration(0)
	for attempts := 0; attempts < 20; attempts++ {
		d := b.BackoffDuration(attempts)
		require.GreaterOrEqual(t, d, previous)
		require.LessOrEqual(t, d, 30*time.Second)
		previous = d
	}
	require.Equal(t, 30*time.Second, b.BackoffDuration(19))
}

func TestNoopBackoffDuration(t *testing.T) {
	require.Equal(t, time.Duration(0), NewNoop().BackoffDuration(5))
}
