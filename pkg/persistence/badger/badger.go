package badger

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixOffer       = "offer:"
	keyPrefixAcceptance  = "accept:"
	keyPrefixHighNonce   = "nonce:"
	keyPrefixWatcher     = "watcher:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	maxConflictRetries = 5
)

// BadgerPersistence provides durable, disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.IPeeringPersistence = (*BadgerPersistence)(nil)

// NewBadgerPersistence opens the database at dataPath with SyncWrites enabled
// and starts a background value log GC.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newZapBadgerLogger(logger)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func offerKey(jobPost, owner common.Address) []byte {
	return []byte(keyPrefixOffer + persistence.OfferKey(jobPost, owner))
}

func acceptancePrefix(workOrder common.Address) string {
	return keyPrefixAcceptance + workOrder.Hex() + ":"
}

func acceptanceKey(workOrder common.Address, nonce *big.Int) []byte {
	return []byte(acceptancePrefix(workOrder) + persistence.NonceKey(nonce))
}

func highNonceKey(workOrder common.Address) []byte {
	return []byte(keyPrefixHighNonce + workOrder.Hex())
}

func watcherKey(registry common.Address) []byte {
	return []byte(keyPrefixWatcher + registry.Hex())
}

// get returns a copy of the value or nil when the key is missing
func get(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (b *BadgerPersistence) view(key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = get(txn, key)
		return err
	})
	return data, err
}

func (b *BadgerPersistence) set(key, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *BadgerPersistence) SaveOffer(offer *types.WorkOrderOffer) error {
	data, err := persistence.MarshalOffer(offer)
	if err != nil {
		return err
	}
	return b.set(offerKey(offer.JobPost, offer.Owner), data)
}

func (b *BadgerPersistence) LoadOffer(jobPost, owner common.Address) (*types.WorkOrderOffer, error) {
	data, err := b.view(offerKey(jobPost, owner))
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalOffer(data)
}

func (b *BadgerPersistence) ListOffers() ([]*types.WorkOrderOffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, persistence.ErrClosed
	}

	offers := make([]*types.WorkOrderOffer, 0)
	err := b.iterate(keyPrefixOffer, func(val []byte) error {
		offer, err := persistence.UnmarshalOffer(val)
		if err != nil {
			return err
		}
		offers = append(offers, offer)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}

	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt < offers[j].CreatedAt
	})
	return offers, nil
}

func (b *BadgerPersistence) iterate(prefix string, fn func(val []byte) error) error {
	return b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerPersistence) AppendAcceptance(record *types.AcceptanceRecord) error {
	data, err := persistence.MarshalAcceptanceRecord(record)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return persistence.ErrClosed
	}

	// badger detects conflicting read-modify-write transactions; retry them
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = b.db.Update(func(txn *badgerdb.Txn) error {
			highest, err := get(txn, highNonceKey(record.WorkOrder))
			if err != nil {
				return err
			}
			if highest != nil && record.Nonce.Cmp(new(big.Int).SetBytes(highest)) <= 0 {
				return persistence.ErrStaleNonce
			}
			if err := txn.Set(highNonceKey(record.WorkOrder), record.Nonce.Bytes()); err != nil {
				return err
			}
			return txn.Set(acceptanceKey(record.WorkOrder, record.Nonce), data)
		})
		if err != badgerdb.ErrConflict {
			return err
		}
	}
	return fmt.Errorf("failed to append acceptance after %d conflicts: %w", maxConflictRetries, err)
}

func (b *BadgerPersistence) LoadAcceptance(workOrder common.Address, nonce *big.Int) (*types.AcceptanceRecord, error) {
	data, err := b.view(acceptanceKey(workOrder, nonce))
	if err != nil {
		return nil, fmt.Errorf("failed to load acceptance: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalAcceptanceRecord(data)
}

func (b *BadgerPersistence) GetHighestNonce(workOrder common.Address) (*big.Int, error) {
	data, err := b.view(highNonceKey(workOrder))
	if err != nil {
		return nil, fmt.Errorf("failed to load highest nonce: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return new(big.Int).SetBytes(data), nil
}

func (b *BadgerPersistence) ListAcceptances(workOrder common.Address) ([]*types.AcceptanceRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, persistence.ErrClosed
	}

	// keys are NonceKey encoded so iteration order is nonce order
	records := make([]*types.AcceptanceRecord, 0)
	err := b.iterate(acceptancePrefix(workOrder), func(val []byte) error {
		record, err := persistence.UnmarshalAcceptanceRecord(val)
		if err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list acceptances: %w", err)
	}
	return records, nil
}

func (b *BadgerPersistence) SaveWatcherState(state *persistence.WatcherState) error {
	data, err := persistence.MarshalWatcherState(state)
	if err != nil {
		return err
	}
	return b.set(watcherKey(state.Registry), data)
}

func (b *BadgerPersistence) LoadWatcherState(registry common.Address) (*persistence.WatcherState, error) {
	data, err := b.view(watcherKey(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to load watcher state: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalWatcherState(data)
}

// Close stops GC and closes the database
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the database can be read
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return nil
	})
}
