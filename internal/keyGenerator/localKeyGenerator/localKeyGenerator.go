package localKeyGenerator

import (
	"context"
	"fmt"
	"sync"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/Layr-Labs/workorder-peering-go/internal/keyGenerator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type keyEntry struct {
	privateKey []byte
	keyName    string
	aliasName  string
	address    common.Address
}

// LocalKeyGenerator creates wallet keys in process, for development and tests
type LocalKeyGenerator struct {
	logger   *zap.Logger
	keyStore map[string]*keyEntry
	mu       sync.RWMutex
}

var _ keyGenerator.IKeyGenerator = (*LocalKeyGenerator)(nil)

func NewLocalKeyGenerator(logger *zap.Logger) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger:   logger,
		keyStore: make(map[string]*keyEntry),
	}
}

func (l *LocalKeyGenerator) GenerateWalletKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedWalletKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}
	keyId := fmt.Sprintf("local-key-%s", uuid.New().String())
	if err := l.LoadPrivateKey(keyId, crypto.FromECDSA(key), keyName, aliasName); err != nil {
		return nil, err
	}
	return l.GetWalletKeyById(ctx, keyId)
}

func (l *LocalKeyGenerator) GetWalletKeyById(ctx context.Context, keyId string) (*keyGenerator.GeneratedWalletKey, error) {
	l.mu.RLock()
	entry, exists := l.keyStore[keyId]
	l.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("key with ID %s not found", keyId)
	}

	return &keyGenerator.GeneratedWalletKey{
		KeyId:         keyId,
		Address:       entry.address,
		PrivateKeyHex: hexutil.Encode(entry.privateKey),
	}, nil
}

// LoadPrivateKey stores existing key material under keyId
func (l *LocalKeyGenerator) LoadPrivateKey(keyId string, privateKey []byte, keyName string, aliasName string) error {
	pk, err := ecdsa.NewPrivateKeyFromBytes(privateKey)
	if err != nil {
		return fmt.Errorf("failed to load private key: %w", err)
	}
	address, err := pk.DeriveAddress()
	if err != nil {
		return fmt.Errorf("failed to derive address: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.keyStore[keyId]; exists {
		return fmt.Errorf("key with ID %s already exists", keyId)
	}
	l.keyStore[keyId] = &keyEntry{
		privateKey: append([]byte(nil), privateKey...),
		keyName:    keyName,
		aliasName:  aliasName,
		address:    address,
	}

	l.logger.Info("Loaded wallet key",
		zap.String("keyId", keyId),
		zap.String("keyName", keyName),
		zap.String("aliasName", aliasName),
		zap.String("address", address.Hex()),
	)
	return nil
}

// GetKeyByAlias returns the id of the key stored under alias
func (l *LocalKeyGenerator) GetKeyByAlias(alias string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for id, entry := range l.keyStore {
		if entry.aliasName == alias {
			return id, true
		}
	}
	return "", false
}
