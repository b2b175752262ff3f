package web3SignerTransportSigner

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultSignTimeout = 10 * time.Second

// Web3SignerTransportSigner delegates message signing to a Web3Signer
// instance holding the wallet key.
type Web3SignerTransportSigner struct {
	client      web3signer.IWeb3Signer
	address     common.Address
	logger      *zap.Logger
	signTimeout time.Duration
}

var _ transportSigner.ITransportSigner = (*Web3SignerTransportSigner)(nil)

// NewWeb3SignerTransportSigner fails if the signer does not hold a key for address.
func NewWeb3SignerTransportSigner(ctx context.Context, client web3signer.IWeb3Signer, address common.Address, logger *zap.Logger) (*Web3SignerTransportSigner, error) {
	accounts, err := client.EthAccounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list web3signer accounts")
	}
	if !slices.Contains(accounts, address) {
		return nil, fmt.Errorf("web3signer holds no key for %s", address.Hex())
	}
	logger.Sugar().Infow("Loaded web3signer transport signer", "address", address.Hex())

	return &Web3SignerTransportSigner{
		client:      client,
		address:     address,
		logger:      logger,
		signTimeout: defaultSignTimeout,
	}, nil
}

func (w *Web3SignerTransportSigner) Address() common.Address {
	return w.address
}

func (w *Web3SignerTransportSigner) SignMessage(data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.signTimeout)
	defer cancel()

	sig, err := w.client.EthSign(ctx, w.address, data)
	if err != nil {
		return nil, err
	}
	if len(sig) != transportSigner.SignatureLength {
		return nil, fmt.Errorf("%w: web3signer returned %d bytes", transportSigner.ErrInvalidSignature, len(sig))
	}
	out := make([]byte, transportSigner.SignatureLength)
	copy(out, sig)
	if out[64] < 27 {
		out[64] += 27
	}

	recovered, err := transportSigner.RecoverSigner(data, out)
	if err != nil {
		return nil, err
	}
	if recovered != w.address {
		return nil, fmt.Errorf("%w: web3signer signed as %s, expected %s", transportSigner.ErrInvalidSignature, recovered.Hex(), w.address.Hex())
	}
	return out, nil
}
