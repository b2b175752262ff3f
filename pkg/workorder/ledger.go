package workorder

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Ledger records accepted work orders and enforces strictly increasing
// nonces per work order.
type Ledger struct {
	store  persistence.IPeeringPersistence
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(store persistence.IPeeringPersistence, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Lookup returns the accepted record for (workOrder, nonce), or nil
func (l *Ledger) Lookup(workOrder common.Address, nonce *big.Int) (*types.AcceptanceRecord, error) {
	record, err := l.store.LoadAcceptance(workOrder, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to load acceptance: %w", err)
	}
	return record, nil
}

// Record stores an accepted acceptance. When the nonce is not above the
// highest recorded nonce it returns the stored record if the very same
// acceptance won a concurrent race, otherwise an error wrapping
// types.ErrReplayRejected.
func (l *Ledger) Record(workOrder, owner common.Address, nonce *big.Int, signature []byte) (*types.AcceptanceRecord, error) {
	record := &types.AcceptanceRecord{
		WorkOrder:  workOrder,
		Owner:      owner,
		Nonce:      new(big.Int).Set(nonce),
		Signature:  signature,
		Status:     types.AcceptStatusAccepted,
		RecordedAt: l.now().Unix(),
	}

	err := l.store.AppendAcceptance(record)
	if err == nil {
		l.logger.Sugar().Infow("Recorded work order acceptance",
			"workOrder", workOrder.Hex(),
			"owner", owner.Hex(),
			"nonce", nonce.String(),
		)
		return record, nil
	}
	if !errors.Is(err, persistence.ErrStaleNonce) {
		return nil, fmt.Errorf("failed to record acceptance: %w", err)
	}

	existing, lerr := l.Lookup(workOrder, nonce)
	if lerr != nil {
		return nil, lerr
	}
	if existing != nil && existing.Owner == owner && existing.Status == types.AcceptStatusAccepted {
		return existing, nil
	}

	highest, herr := l.store.GetHighestNonce(workOrder)
	if herr != nil {
		return nil, fmt.Errorf("failed to load highest nonce: %w", herr)
	}
	return nil, fmt.Errorf("%w: nonce %s is not above %s for work order %s",
		types.ErrReplayRejected, nonce.String(), bigString(highest), workOrder.Hex())
}

func bigString(n *big.Int) string {
	if n == nil {
		return "<none>"
	}
	return n.String()
}
