package persistence

import (
	"errors"
	"math/big"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrClosed = errors.New("persistence layer is closed")

	// ErrStaleNonce is returned by AppendAcceptance when the record's nonce is
	// not greater than the highest nonce already stored for the work order.
	ErrStaleNonce = errors.New("nonce is not greater than the highest recorded nonce")
)

// IPeeringPersistence stores the state that must survive restarts of a
// Master (offers and the acceptance ledger) and of a Node (job watcher
// checkpoint). All implementations must be thread-safe.
type IPeeringPersistence interface {
	// Work order offers

	// SaveOffer stores the offer for (offer.JobPost, offer.Owner), overwriting any previous one.
	SaveOffer(offer *types.WorkOrderOffer) error

	// LoadOffer returns nil when no offer exists, error only on storage failure.
	LoadOffer(jobPost, owner common.Address) (*types.WorkOrderOffer, error)

	// ListOffers returns every stored offer sorted by creation time.
	ListOffers() ([]*types.WorkOrderOffer, error)

	// Acceptance ledger

	// AppendAcceptance atomically records an acceptance and raises the
	// work order's highest nonce. Returns ErrStaleNonce, and stores nothing,
	// if record.Nonce <= the highest nonce already recorded.
	AppendAcceptance(record *types.AcceptanceRecord) error

	// LoadAcceptance returns nil when (workOrder, nonce) was never recorded.
	LoadAcceptance(workOrder common.Address, nonce *big.Int) (*types.AcceptanceRecord, error)

	// GetHighestNonce returns nil when the work order has no acceptance.
	GetHighestNonce(workOrder common.Address) (*big.Int, error)

	// ListAcceptances returns the work order's records sorted by nonce.
	ListAcceptances(workOrder common.Address) ([]*types.AcceptanceRecord, error)

	// Job watcher

	SaveWatcherState(state *WatcherState) error

	// LoadWatcherState returns nil on first run.
	LoadWatcherState(registry common.Address) (*WatcherState, error)

	// Lifecycle Management

	// Close is idempotent. After Close all other operations return ErrClosed.
	Close() error

	// HealthCheck returns nil if the backend is operational.
	HealthCheck() error
}
