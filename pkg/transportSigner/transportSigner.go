package transportSigner

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of an Ethereum [R || S || V] signature
const SignatureLength = crypto.SignatureLength

var ErrInvalidSignature = errors.New("invalid signature")

type SignedMessage struct {
	Payload   []byte `json:"payload"`   // Raw message bytes
	Signature []byte `json:"signature"` // 65 byte ECDSA signature over the EIP-191 hash of payload
}

// ITransportSigner signs peer protocol messages with the wallet key that owns
// the local on-chain identity.
type ITransportSigner interface {
	// SignMessage signs the EIP-191 personal message hash of data.
	// The returned signature uses V in {27, 28}.
	SignMessage(data []byte) ([]byte, error)

	// Address is the wallet address signatures recover to
	Address() common.Address
}

// HashMessage returns keccak256("\x19Ethereum Signed Message:\n" + len(data) + data)
func HashMessage(data []byte) []byte {
	return accounts.TextHash(data)
}

// CreateSignedMessage signs data and bundles it with its signature
func CreateSignedMessage(signer ITransportSigner, data []byte) (*SignedMessage, error) {
	sig, err := signer.SignMessage(data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return &SignedMessage{
		Payload:   data,
		Signature: sig,
	}, nil
}

// RecoverSigner returns the address whose key produced signature over data.
// The signature is not modified.
func RecoverSigner(data []byte, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(signature))
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery id %d", ErrInvalidSignature, signature[64])
	}

	pubKey, err := crypto.SigToPub(HashMessage(data), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifySignedMessage checks that msg was signed by expected.
func VerifySignedMessage(msg *SignedMessage, expected common.Address) error {
	if msg == nil {
		return fmt.Errorf("signed message is nil")
	}
	signer, err := RecoverSigner(msg.Payload, msg.Signature)
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("%w: recovered signer %s does not match %s", ErrInvalidSignature, signer.Hex(), expected.Hex())
	}
	return nil
}
