package inMemoryTransportSigner

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

type InMemoryTransportSigner struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ transportSigner.ITransportSigner = (*InMemoryTransportSigner)(nil)

func NewECDSAInMemoryTransportSigner(
	privateKey []byte,
	logger *zap.Logger,
) (*InMemoryTransportSigner, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}

	return NewInMemoryTransportSigner(key, logger), nil
}

// NewECDSAInMemoryTransportSignerFromHex accepts the key with or without a 0x prefix
func NewECDSAInMemoryTransportSignerFromHex(
	privateKeyHex string,
	logger *zap.Logger,
) (*InMemoryTransportSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}

	return NewInMemoryTransportSigner(key, logger), nil
}

func NewInMemoryTransportSigner(
	key *ecdsa.PrivateKey,
	logger *zap.Logger,
) *InMemoryTransportSigner {
	return &InMemoryTransportSigner{
		logger:     logger,
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// data is the raw message bytes to sign
func (its *InMemoryTransportSigner) SignMessage(data []byte) ([]byte, error) {
	sig, err := crypto.Sign(transportSigner.HashMessage(data), its.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

func (its *InMemoryTransportSigner) Address() common.Address {
	return its.address
}
