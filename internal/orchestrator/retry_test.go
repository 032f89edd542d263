package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCoordinatorRetriesThenSucceeds matches spec §8 scenario S4: a
// tool that fails twice then succeeds on the third attempt completes
// without the caller observing an error, under a 3-attempt policy
// (short fixed backoff so the test runs fast).
func TestCoordinatorRetriesThenSucceeds(t *testing.T) {
	c := NewCoordinator()
	c.RegisterPolicy("scan:fake-scanner", Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Backoff:      BackoffFixed,
	})

	calls := 0
	err := c.Execute(context.Background(), "scan:fake-scanner", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("simulated timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestCoordinatorExhaustsAttemptsAndReturnsError verifies a
// persistently failing tool returns an error after MaxAttempts
// without retrying indefinitely.
func TestCoordinatorExhaustsAttemptsAndReturnsError(t *testing.T) {
	c := NewCoordinator()
	c.RegisterPolicy("scan:always-fails", Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Backoff:      BackoffFixed,
	})

	calls := 0
	err := c.Execute(context.Background(), "scan:always-fails", func(ctx context.Context) error {
		calls++
		return errors.New("simulated persistent failure")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

// TestCoordinatorCircuitBreakerOpensAfterThreshold verifies repeated
// failures across separate Execute calls eventually short-circuit
// further attempts without invoking fn.
func TestCoordinatorCircuitBreakerOpensAfterThreshold(t *testing.T) {
	c := NewCoordinator()
	c.RegisterPolicy("scan:unreliable", Policy{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Backoff:      BackoffFixed,
	})

	failing := func(ctx context.Context) error { return errors.New("down") }
	for i := 0; i < 5; i++ {
		_ = c.Execute(context.Background(), "scan:unreliable", failing)
	}

	calls := 0
	err := c.Execute(context.Background(), "scan:unreliable", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls, "breaker should short-circuit before invoking fn")
}

// TestCoordinatorCancelledContextStopsRetries verifies a cancelled
// context aborts the retry loop instead of running fn.
func TestCoordinatorCancelledContextStopsRetries(t *testing.T) {
	c := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := c.Execute(ctx, "scan:cancelled", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}
