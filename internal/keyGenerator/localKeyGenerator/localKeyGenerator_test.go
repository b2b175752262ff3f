package localKeyGenerator

import (
	"context"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner/inMemoryTransportSigner"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func Test_LocalKeyGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("generated key signs as its address", func(t *testing.T) {
		g := NewLocalKeyGenerator(zap.NewNop())
		key, err := g.GenerateWalletKey(ctx, "business", "acme-master")
		require.NoError(t, err)
		assert.NotEmpty(t, key.KeyId)
		assert.NotEmpty(t, key.PrivateKeyHex)

		signer, err := inMemoryTransportSigner.NewECDSAInMemoryTransportSignerFromHex(key.PrivateKeyHex, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, key.Address, signer.Address())

		sig, err := signer.SignMessage([]byte("hello"))
		require.NoError(t, err)
		recovered, err := transportSigner.RecoverSigner([]byte("hello"), sig)
		require.NoError(t, err)
		assert.Equal(t, key.Address, recovered)

		id, ok := g.GetKeyByAlias("acme-master")
		require.True(t, ok)
		assert.Equal(t, key.KeyId, id)
	})

	t.Run("loaded key matches go-ethereum derivation", func(t *testing.T) {
		g := NewLocalKeyGenerator(zap.NewNop())
		raw, err := crypto.GenerateKey()
		require.NoError(t, err)

		require.NoError(t, g.LoadPrivateKey("fixed", crypto.FromECDSA(raw), "node", "node-1"))
		key, err := g.GetWalletKeyById(ctx, "fixed")
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(raw.PublicKey), key.Address)

		assert.Error(t, g.LoadPrivateKey("fixed", crypto.FromECDSA(raw), "node", "node-1"))
	})

	t.Run("unknown key", func(t *testing.T) {
		g := NewLocalKeyGenerator(zap.NewNop())
		_, err := g.GetWalletKeyById(ctx, "missing")
		assert.Error(t, err)
		_, ok := g.GetKeyByAlias("missing")
		assert.False(t, ok)
	})
}
