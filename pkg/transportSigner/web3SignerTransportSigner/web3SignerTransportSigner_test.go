package web3SignerTransportSigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/Layr-Labs/workorder-peering-go/pkg/logger"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEthService serves eth_accounts and eth_sign like a Web3Signer holding key.
// V is returned as 0/1 to exercise normalisation.
type fakeEthService struct {
	key *ecdsa.PrivateKey
}

func (s *fakeEthService) Accounts() []common.Address {
	return []common.Address{crypto.PubkeyToAddress(s.key.PublicKey)}
}

func (s *fakeEthService) Sign(account common.Address, data hexutil.Bytes) (hexutil.Bytes, error) {
	if account != crypto.PubkeyToAddress(s.key.PublicKey) {
		return nil, fmt.Errorf("unknown account %s", account.Hex())
	}
	return crypto.Sign(transportSigner.HashMessage(data), s.key)
}

func startFakeSigner(t *testing.T, key *ecdsa.PrivateKey) string {
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &fakeEthService{key: key}))
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(func() {
		httpSrv.Close()
		srv.Stop()
	})
	return httpSrv.URL
}

func Test_Web3SignerTransportSigner(t *testing.T) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)
	url := startFakeSigner(t, key)

	t.Run("signs over json-rpc", func(t *testing.T) {
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(ctx, &config.RemoteSignerConfig{
			Url:         url,
			FromAddress: address.Hex(),
		}, l)
		require.NoError(t, err)
		defer client.Close()

		signer, err := NewWeb3SignerTransportSigner(ctx, client, address, l)
		require.NoError(t, err)
		assert.Equal(t, address, signer.Address())

		msg := []byte("challenge")
		sig, err := signer.SignMessage(msg)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sig[64], byte(27))

		recovered, err := transportSigner.RecoverSigner(msg, sig)
		require.NoError(t, err)
		assert.Equal(t, address, recovered)
	})

	t.Run("rejects unknown account", func(t *testing.T) {
		client, err := web3signer.NewClient(ctx, &web3signer.Config{BaseURL: url, Timeout: web3signer.DefaultRequestTimeout}, l)
		require.NoError(t, err)
		defer client.Close()

		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		_, err = NewWeb3SignerTransportSigner(ctx, client, crypto.PubkeyToAddress(other.PublicKey), l)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "holds no key")
	})

	t.Run("invalid remote config", func(t *testing.T) {
		_, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(ctx, &config.RemoteSignerConfig{Url: url}, l)
		require.Error(t, err)
	})
}
