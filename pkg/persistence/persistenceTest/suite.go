// Package persistenceTest holds the behavior every IPeeringPersistence
// backend must share, run from each backend's own tests.
package persistenceTest

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend
type Factory func(t *testing.T) persistence.IPeeringPersistence

func uniqueAddress(t *testing.T) common.Address {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}

func acceptance(workOrder, owner common.Address, nonce int64) *types.AcceptanceRecord {
	return &types.AcceptanceRecord{
		WorkOrder:  workOrder,
		Owner:      owner,
		Nonce:      big.NewInt(nonce),
		Signature:  []byte{byte(nonce), 1, 2},
		Status:     types.AcceptStatusAccepted,
		RecordedAt: 1700000000 + nonce,
	}
}

func RunSuite(t *testing.T, newBackend Factory) {
	t.Run("Offers", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		jobPost, owner := uniqueAddress(t), uniqueAddress(t)
		loaded, err := p.LoadOffer(jobPost, owner)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		before, err := p.ListOffers()
		require.NoError(t, err)

		offer := &types.WorkOrderOffer{JobPost: jobPost, WorkOrder: uniqueAddress(t), Owner: owner, CreatedAt: 1700000000}
		require.NoError(t, p.SaveOffer(offer))

		loaded, err = p.LoadOffer(jobPost, owner)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, *offer, *loaded)

		other, err := p.LoadOffer(jobPost, uniqueAddress(t))
		require.NoError(t, err)
		assert.Nil(t, other)

		second := &types.WorkOrderOffer{JobPost: uniqueAddress(t), WorkOrder: uniqueAddress(t), Owner: owner, CreatedAt: 1700000001}
		require.NoError(t, p.SaveOffer(second))

		after, err := p.ListOffers()
		require.NoError(t, err)
		assert.Len(t, after, len(before)+2)
	})

	t.Run("Acceptance ledger", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		workOrder, owner := uniqueAddress(t), uniqueAddress(t)

		highest, err := p.GetHighestNonce(workOrder)
		require.NoError(t, err)
		assert.Nil(t, highest)

		require.NoError(t, p.AppendAcceptance(acceptance(workOrder, owner, 1)))
		require.NoError(t, p.AppendAcceptance(acceptance(workOrder, owner, 5)))

		err = p.AppendAcceptance(acceptance(workOrder, owner, 5))
		assert.ErrorIs(t, err, persistence.ErrStaleNonce)
		err = p.AppendAcceptance(acceptance(workOrder, owner, 3))
		assert.ErrorIs(t, err, persistence.ErrStaleNonce)

		highest, err = p.GetHighestNonce(workOrder)
		require.NoError(t, err)
		assert.Equal(t, int64(5), highest.Int64())

		loaded, err := p.LoadAcceptance(workOrder, big.NewInt(1))
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, owner, loaded.Owner)
		assert.Equal(t, types.AcceptStatusAccepted, loaded.Status)
		assert.Equal(t, []byte{1, 1, 2}, loaded.Signature)

		missing, err := p.LoadAcceptance(workOrder, big.NewInt(3))
		require.NoError(t, err)
		assert.Nil(t, missing)

		records, err := p.ListAcceptances(workOrder)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, int64(1), records[0].Nonce.Int64())
		assert.Equal(t, int64(5), records[1].Nonce.Int64())

		// ledgers are per work order
		require.NoError(t, p.AppendAcceptance(acceptance(uniqueAddress(t), owner, 1)))
	})

	t.Run("Concurrent appends of one nonce record it once", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		workOrder, owner := uniqueAddress(t), uniqueAddress(t)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, stale := 0, 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := p.AppendAcceptance(acceptance(workOrder, owner, 7))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, persistence.ErrStaleNonce):
					stale++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 9, stale)
	})

	t.Run("Watcher state", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		registry := uniqueAddress(t)
		state, err := p.LoadWatcherState(registry)
		require.NoError(t, err)
		assert.Nil(t, state)

		require.NoError(t, p.SaveWatcherState(&persistence.WatcherState{Registry: registry, LastProcessedBlock: 100}))
		require.NoError(t, p.SaveWatcherState(&persistence.WatcherState{Registry: registry, LastProcessedBlock: 120}))

		state, err = p.LoadWatcherState(registry)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, uint64(120), state.LastProcessedBlock)
	})

	t.Run("Nil inputs", func(t *testing.T) {
		p := newBackend(t)
		defer func() { _ = p.Close() }()

		assert.Error(t, p.SaveOffer(nil))
		assert.Error(t, p.AppendAcceptance(nil))
		assert.Error(t, p.SaveWatcherState(nil))
	})

	t.Run("Closed", func(t *testing.T) {
		p := newBackend(t)
		require.NoError(t, p.HealthCheck())
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		assert.ErrorIs(t, p.HealthCheck(), persistence.ErrClosed)
		_, err := p.LoadOffer(common.Address{}, common.Address{})
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.ErrorIs(t, p.AppendAcceptance(acceptance(common.Address{}, common.Address{}, 1)), persistence.ErrClosed)
	})
}
