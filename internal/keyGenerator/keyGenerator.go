package keyGenerator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// GeneratedWalletKey is a new secp256k1 wallet key. PrivateKeyHex is only set
// when the key material is held locally.
type GeneratedWalletKey struct {
	KeyId         string
	Address       common.Address
	PrivateKeyHex string
}

// IKeyGenerator provisions the wallet keys that own peer identities
type IKeyGenerator interface {
	GenerateWalletKey(ctx context.Context, keyName string, aliasName string) (*GeneratedWalletKey, error)
	GetWalletKeyById(ctx context.Context, keyId string) (*GeneratedWalletKey, error)
}
