package memory

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type workOrderLedger struct {
	highest *big.Int
	records map[string]*types.AcceptanceRecord // NonceKey -> record
}

// MemoryPersistence is an in-memory implementation of IPeeringPersistence.
// All data is lost when the process exits.
type MemoryPersistence struct {
	mu sync.RWMutex

	offers   map[string]*types.WorkOrderOffer
	ledgers  map[common.Address]*workOrderLedger
	watchers map[common.Address]*persistence.WatcherState

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	logger.Sugar().Warnw("Using in-memory persistence, all offers and acceptances will be lost on restart")

	return &MemoryPersistence{
		offers:   make(map[string]*types.WorkOrderOffer),
		ledgers:  make(map[common.Address]*workOrderLedger),
		watchers: make(map[common.Address]*persistence.WatcherState),
	}
}

var _ persistence.IPeeringPersistence = (*MemoryPersistence)(nil)

func (m *MemoryPersistence) SaveOffer(offer *types.WorkOrderOffer) error {
	if offer == nil {
		return persistenceNilError("WorkOrderOffer")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return persistence.ErrClosed
	}

	cp := *offer
	m.offers[persistence.OfferKey(offer.JobPost, offer.Owner)] = &cp
	return nil
}

func (m *MemoryPersistence) LoadOffer(jobPost, owner common.Address) (*types.WorkOrderOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrClosed
	}

	offer, ok := m.offers[persistence.OfferKey(jobPost, owner)]
	if !ok {
		return nil, nil
	}
	cp := *offer
	return &cp, nil
}

func (m *MemoryPersistence) ListOffers() ([]*types.WorkOrderOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrClosed
	}

	offers := make([]*types.WorkOrderOffer, 0, len(m.offers))
	for _, o := range m.offers {
		cp := *o
		offers = append(offers, &cp)
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt < offers[j].CreatedAt
	})
	return offers, nil
}

func (m *MemoryPersistence) AppendAcceptance(record *types.AcceptanceRecord) error {
	if record == nil || record.Nonce == nil {
		return persistenceNilError("AcceptanceRecord")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return persistence.ErrClosed
	}

	ledger, ok := m.ledgers[record.WorkOrder]
	if !ok {
		ledger = &workOrderLedger{records: make(map[string]*types.AcceptanceRecord)}
		m.ledgers[record.WorkOrder] = ledger
	}
	if ledger.highest != nil && record.Nonce.Cmp(ledger.highest) <= 0 {
		return persistence.ErrStaleNonce
	}

	ledger.highest = new(big.Int).Set(record.Nonce)
	ledger.records[persistence.NonceKey(record.Nonce)] = persistence.CopyAcceptanceRecord(record)
	return nil
}

func (m *MemoryPersistence) LoadAcceptance(workOrder common.Address, nonce *big.Int) (*types.AcceptanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrClosed
	}

	ledger, ok := m.ledgers[workOrder]
	if !ok {
		return nil, nil
	}
	return persistence.CopyAcceptanceRecord(ledger.records[persistence.NonceKey(nonce)]), nil
}

func (m *MemoryPersistence) GetHighestNonce(workOrder common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrClosed
	}

	ledger, ok := m.ledgers[workOrder]
	if !ok || ledger.highest == nil {
		return nil, nil
	}
	return new(big.Int).Set(ledger.highest), nil
}

func (m *MemoryPersistence) ListAcceptances(workOrder common.Address) ([]*types.AcceptanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrClosed
	}

	records := make([]*types.AcceptanceRecord, 0)
	if ledger, ok := m.ledgers[workOrder]; ok {
		for _, r := range ledger.records {
			records = append(records, persistence.CopyAcceptanceRecord(r))
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Nonce.Cmp(records[j].Nonce) < 0
	})
	return records, nil
}

func (m *MemoryPersistence) SaveWatcherState(state *persistence.WatcherState) error {
	if state == nil {
		return persistenceNilError("WatcherState")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return persistence.ErrClosed
	}

	cp := *state
	m.watchers[state.Registry] = &cp
	return nil
}

func (m *MemoryPersistence) LoadWatcherState(registry common.Address) (*persistence.WatcherState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, persistence.ErrClosed
	}

	state, ok := m.watchers[registry]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}

func persistenceNilError(kind string) error {
	return fmt.Errorf("cannot save nil %s", kind)
}
