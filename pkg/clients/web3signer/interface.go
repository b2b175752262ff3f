package web3signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IWeb3Signer is the subset of the Web3Signer JSON-RPC surface used to sign
// peer protocol messages with a remotely held wallet key.
type IWeb3Signer interface {
	// EthAccounts lists the accounts the signer holds keys for (eth_accounts)
	EthAccounts(ctx context.Context) ([]common.Address, error)

	// EthSign signs the EIP-191 personal message hash of data (eth_sign)
	EthSign(ctx context.Context, account common.Address, data []byte) (hexutil.Bytes, error)
}

var _ IWeb3Signer = (*Client)(nil)
