package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// Backoff returns the delay to wait after the given zero based attempt
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	backoff := rc.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * rc.BackoffMultiple)
		if backoff > rc.MaxBackoff {
			return rc.MaxBackoff
		}
	}
	return backoff
}

// Do runs fn until it succeeds or MaxAttempts is reached, sleeping with
// exponential backoff between attempts. The last error is returned.
func (rc RetryConfig) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(rc.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: retry aborted after %d attempts: %v", types.ErrTimeout, attempt+1, err)
			}
			return fmt.Errorf("retry cancelled after %d attempts: %w: %v", attempt+1, ctx.Err(), err)
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
