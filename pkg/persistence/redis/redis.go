package redis

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixOffer       = "wop:offer:"
	keyPrefixAcceptance  = "wop:accept:"
	keyPrefixHighNonce   = "wop:nonce:"
	keyPrefixWatcher     = "wop:watcher:"
	keySchemaVersion     = "wop:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Redis doesn't support prefix iteration natively
	keySetOffers          = "wop:offers:index"
	keySuffixAcceptIndex  = ":index"
	maxOptimisticAttempts = 10

	operationTimeout = 5 * time.Second
)

// RedisPersistence lets several Master instances share one acceptance ledger.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.IPeeringPersistence = (*RedisPersistence)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "acme:" gives "acme:wop:offer:..."
	KeyPrefix string
}

func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)
	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

// begin guards against use after Close and bounds every call with a timeout
func (r *RedisPersistence) begin() (context.Context, func(), error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, nil, persistence.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	return ctx, func() {
		cancel()
		r.mu.RUnlock()
	}, nil
}

func (r *RedisPersistence) offerKey(suffix string) string {
	return r.prefixKey(keyPrefixOffer + suffix)
}

func (r *RedisPersistence) acceptanceKey(workOrder common.Address, nonceKey string) string {
	return r.prefixKey(keyPrefixAcceptance + workOrder.Hex() + ":" + nonceKey)
}

func (r *RedisPersistence) acceptanceIndexKey(workOrder common.Address) string {
	return r.prefixKey(keyPrefixAcceptance + workOrder.Hex() + keySuffixAcceptIndex)
}

func (r *RedisPersistence) highNonceKey(workOrder common.Address) string {
	return r.prefixKey(keyPrefixHighNonce + workOrder.Hex())
}

func (r *RedisPersistence) SaveOffer(offer *types.WorkOrderOffer) error {
	data, err := persistence.MarshalOffer(offer)
	if err != nil {
		return err
	}

	ctx, done, err := r.begin()
	if err != nil {
		return err
	}
	defer done()

	suffix := persistence.OfferKey(offer.JobPost, offer.Owner)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.offerKey(suffix), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetOffers), suffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save offer: %w", err)
	}
	return nil
}

func (r *RedisPersistence) LoadOffer(jobPost, owner common.Address) (*types.WorkOrderOffer, error) {
	ctx, done, err := r.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	data, err := r.client.Get(ctx, r.offerKey(persistence.OfferKey(jobPost, owner))).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	return persistence.UnmarshalOffer(data)
}

func (r *RedisPersistence) ListOffers() ([]*types.WorkOrderOffer, error) {
	ctx, done, err := r.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	suffixes, err := r.client.SMembers(ctx, r.prefixKey(keySetOffers)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list offer keys: %w", err)
	}

	offers := make([]*types.WorkOrderOffer, 0, len(suffixes))
	if len(suffixes) == 0 {
		return offers, nil
	}

	keys := make([]string, len(suffixes))
	for i, s := range suffixes {
		keys[i] = r.offerKey(s)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offers: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		offer, err := persistence.UnmarshalOffer([]byte(s))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal offer, skipping", "key", keys[i], "error", err)
			continue
		}
		offers = append(offers, offer)
	}

	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt < offers[j].CreatedAt
	})
	return offers, nil
}

// AppendAcceptance uses WATCH on the work order's highest nonce so that
// concurrent Masters sharing this Redis cannot both record the same nonce.
func (r *RedisPersistence) AppendAcceptance(record *types.AcceptanceRecord) error {
	data, err := persistence.MarshalAcceptanceRecord(record)
	if err != nil {
		return err
	}

	ctx, done, err := r.begin()
	if err != nil {
		return err
	}
	defer done()

	highKey := r.highNonceKey(record.WorkOrder)
	nonceKey := persistence.NonceKey(record.Nonce)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, highKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			highest, ok := new(big.Int).SetString(current, 10)
			if !ok {
				return fmt.Errorf("corrupt highest nonce %q for %s", current, record.WorkOrder.Hex())
			}
			if record.Nonce.Cmp(highest) <= 0 {
				return persistence.ErrStaleNonce
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, highKey, record.Nonce.String(), 0)
			pipe.Set(ctx, r.acceptanceKey(record.WorkOrder, nonceKey), data, 0)
			pipe.SAdd(ctx, r.acceptanceIndexKey(record.WorkOrder), nonceKey)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxOptimisticAttempts; attempt++ {
		err = r.client.Watch(ctx, txf, highKey)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("failed to append acceptance after %d attempts: %w", maxOptimisticAttempts, err)
}

func (r *RedisPersistence) LoadAcceptance(workOrder common.Address, nonce *big.Int) (*types.AcceptanceRecord, error) {
	ctx, done, err := r.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	data, err := r.client.Get(ctx, r.acceptanceKey(workOrder, persistence.NonceKey(nonce))).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load acceptance: %w", err)
	}
	return persistence.UnmarshalAcceptanceRecord(data)
}

func (r *RedisPersistence) GetHighestNonce(workOrder common.Address) (*big.Int, error) {
	ctx, done, err := r.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	current, err := r.client.Get(ctx, r.highNonceKey(workOrder)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load highest nonce: %w", err)
	}
	highest, ok := new(big.Int).SetString(current, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt highest nonce %q for %s", current, workOrder.Hex())
	}
	return highest, nil
}

func (r *RedisPersistence) ListAcceptances(workOrder common.Address) ([]*types.AcceptanceRecord, error) {
	ctx, done, err := r.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	nonceKeys, err := r.client.SMembers(ctx, r.acceptanceIndexKey(workOrder)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list acceptance keys: %w", err)
	}
	records := make([]*types.AcceptanceRecord, 0, len(nonceKeys))
	if len(nonceKeys) == 0 {
		return records, nil
	}
	sort.Strings(nonceKeys)

	keys := make([]string, len(nonceKeys))
	for i, nk := range nonceKeys {
		keys[i] = r.acceptanceKey(workOrder, nk)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch acceptances: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		record, err := persistence.UnmarshalAcceptanceRecord([]byte(s))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal acceptance, skipping", "key", keys[i], "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *RedisPersistence) SaveWatcherState(state *persistence.WatcherState) error {
	data, err := persistence.MarshalWatcherState(state)
	if err != nil {
		return err
	}

	ctx, done, err := r.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := r.client.Set(ctx, r.prefixKey(keyPrefixWatcher+state.Registry.Hex()), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save watcher state: %w", err)
	}
	return nil
}

func (r *RedisPersistence) LoadWatcherState(registry common.Address) (*persistence.WatcherState, error) {
	ctx, done, err := r.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	data, err := r.client.Get(ctx, r.prefixKey(keyPrefixWatcher+registry.Hex())).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load watcher state: %w", err)
	}
	return persistence.UnmarshalWatcherState(data)
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck pings Redis and verifies the schema version key
func (r *RedisPersistence) HealthCheck() error {
	ctx, done, err := r.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err = r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
