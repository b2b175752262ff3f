package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, c *Connection) []byte {
	t.Helper()
	select {
	case data, ok := <-c.Inbound():
		require.True(t, ok, "inbound closed")
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func Test_Pipe(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("Delivers in order", func(t *testing.T) {
		a, b := NewPipe(logger)
		defer a.Close()

		assert.Equal(t, StateOpen, a.State())
		assert.Equal(t, StateOpen, b.State())

		for i := 0; i < 20; i++ {
			require.NoError(t, a.Send(ctx, []byte(fmt.Sprintf("msg-%d", i))))
		}
		for i := 0; i < 20; i++ {
			assert.Equal(t, fmt.Sprintf("msg-%d", i), string(receive(t, b)))
		}

		require.NoError(t, b.Send(ctx, []byte("reply")))
		assert.Equal(t, "reply", string(receive(t, a)))
	})

	t.Run("Close is idempotent and propagates", func(t *testing.T) {
		a, b := NewPipe(logger)

		require.NoError(t, a.Close())
		require.NoError(t, a.Close())
		assert.Equal(t, StateClosed, a.State())

		select {
		case <-b.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("remote end did not observe close")
		}
		assert.Equal(t, StateClosed, b.State())
		assert.NoError(t, b.Err())

		_, ok := <-b.Inbound()
		assert.False(t, ok)

		err := a.Send(ctx, []byte("late"))
		assert.ErrorIs(t, err, types.ErrConnectionClosed)
		err = b.Send(ctx, []byte("late"))
		assert.ErrorIs(t, err, types.ErrConnectionClosed)
	})

	t.Run("Messages sent before close are drained", func(t *testing.T) {
		a, b := NewPipe(logger)
		require.NoError(t, a.Send(ctx, []byte("first")))
		require.NoError(t, a.Send(ctx, []byte("second")))
		require.NoError(t, a.Close())

		var got []string
		for data := range b.Inbound() {
			got = append(got, string(data))
		}
		assert.Equal(t, []string{"first", "second"}, got)
	})

	t.Run("State listeners observe transitions", func(t *testing.T) {
		a, b := NewPipe(logger)
		defer b.Close()

		var mu sync.Mutex
		var transitions []string
		a.OnStateChange(func(from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())
		})

		require.NoError(t, a.Close())
		require.NoError(t, a.Close())

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"open->closed"}, transitions)
	})
}

func Test_PipeRetryConfig(t *testing.T) {
	rc := RetryConfig{
		MaxAttempts:     4,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      4 * time.Millisecond,
		BackoffMultiple: 2,
	}

	t.Run("Backoff is capped", func(t *testing.T) {
		assert.Equal(t, time.Millisecond, rc.Backoff(0))
		assert.Equal(t, 2*time.Millisecond, rc.Backoff(1))
		assert.Equal(t, 4*time.Millisecond, rc.Backoff(2))
		assert.Equal(t, 4*time.Millisecond, rc.Backoff(5))
	})

	t.Run("Stops on success", func(t *testing.T) {
		calls := 0
		err := rc.Do(context.Background(), func(attempt int) error {
			calls++
			if attempt < 2 {
				return fmt.Errorf("attempt %d failed", attempt)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Returns last error", func(t *testing.T) {
		calls := 0
		err := rc.Do(context.Background(), func(attempt int) error {
			calls++
			return types.ErrNotEligible
		})
		assert.ErrorIs(t, err, types.ErrNotEligible)
		assert.Equal(t, 4, calls)
	})

	t.Run("Context cancellation stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryConfig{MaxAttempts: 10, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiple: 1}
		calls := 0
		go cancel()
		err := slow.Do(ctx, func(attempt int) error {
			calls++
			return fmt.Errorf("nope")
		})
		assert.ErrorIs(t, err, types.ErrTimeout)
		assert.Equal(t, 1, calls)
	})
}
