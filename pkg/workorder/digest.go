package workorder

import (
	"fmt"
	"math/big"

	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// packedAcceptanceLength is len(address) + len(bool) + len(uint256)
const packedAcceptanceLength = common.AddressLength + 1 + 32

// PackAcceptance returns abi.encodePacked(address workOrder, bool accept, uint256 nonce)
func PackAcceptance(workOrder common.Address, accept bool, nonce *big.Int) ([]byte, error) {
	if err := validateNonce(nonce); err != nil {
		return nil, err
	}

	packed := make([]byte, 0, packedAcceptanceLength)
	packed = append(packed, workOrder.Bytes()...)
	if accept {
		packed = append(packed, 1)
	} else {
		packed = append(packed, 0)
	}
	packed = append(packed, math.U256Bytes(new(big.Int).Set(nonce))...)
	return packed, nil
}

// AcceptanceDigest is keccak256 of the packed acceptance. It is the message
// the node's wallet signs with an EIP-191 prefix.
func AcceptanceDigest(workOrder common.Address, accept bool, nonce *big.Int) ([]byte, error) {
	packed, err := PackAcceptance(workOrder, accept, nonce)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(packed), nil
}

// SignAcceptance signs (workOrder, accept, nonce) with the node's wallet
func SignAcceptance(signer transportSigner.ITransportSigner, workOrder common.Address, accept bool, nonce *big.Int) ([]byte, error) {
	digest, err := AcceptanceDigest(workOrder, accept, nonce)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignMessage(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign acceptance: %w", err)
	}
	return sig, nil
}

// RecoverAcceptanceSigner returns the wallet that signed the acceptance
func RecoverAcceptanceSigner(workOrder common.Address, accept bool, nonce *big.Int, signature []byte) (common.Address, error) {
	digest, err := AcceptanceDigest(workOrder, accept, nonce)
	if err != nil {
		return common.Address{}, err
	}
	return transportSigner.RecoverSigner(digest, signature)
}

// ParseNonce parses a decimal or 0x-prefixed hex uint256
func ParseNonce(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing nonce", types.ErrProtocolFormat)
	}
	nonce, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("%w: invalid nonce %q", types.ErrProtocolFormat, s)
	}
	if err := validateNonce(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

func validateNonce(nonce *big.Int) error {
	if nonce == nil {
		return fmt.Errorf("%w: nonce is nil", types.ErrProtocolFormat)
	}
	if nonce.Sign() < 0 || nonce.BitLen() > 256 {
		return fmt.Errorf("%w: nonce %s is not a uint256", types.ErrProtocolFormat, nonce.String())
	}
	return nil
}
