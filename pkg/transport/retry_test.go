package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/stretchr/testify/assert"
)

func Test_RetryConfig(t *testing.T) {
	errDown := errors.New("down")
	failing := func(int) error { return errDown }

	t.Run("Returns the last error once attempts run out", func(t *testing.T) {
		rc := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiple: 1}
		calls := 0
		err := rc.Do(context.Background(), func(int) error {
			calls++
			return errDown
		})
		assert.ErrorIs(t, err, errDown)
		assert.Equal(t, 3, calls)
	})

	t.Run("Deadline is a timeout", func(t *testing.T) {
		rc := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffMultiple: 1}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := rc.Do(ctx, failing)
		assert.ErrorIs(t, err, types.ErrTimeout)
		assert.NotErrorIs(t, err, context.Canceled)
	})

	t.Run("Cancellation is not a timeout", func(t *testing.T) {
		rc := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffMultiple: 1}
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		err := rc.Do(ctx, failing)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, types.ErrTimeout)
	})

	t.Run("Backoff is capped", func(t *testing.T) {
		rc := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiple: 2}
		assert.Equal(t, 100*time.Millisecond, rc.Backoff(0))
		assert.Equal(t, 400*time.Millisecond, rc.Backoff(2))
		assert.Equal(t, time.Second, rc.Backoff(10))
	})
}
