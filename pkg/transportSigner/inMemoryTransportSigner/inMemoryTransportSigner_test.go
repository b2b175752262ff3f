package inMemoryTransportSigner

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hexutil.Encode(crypto.FromECDSA(key))

	withPrefix, err := NewECDSAInMemoryTransportSignerFromHex(keyHex, zap.NewNop())
	require.NoError(t, err)
	withoutPrefix, err := NewECDSAInMemoryTransportSignerFromHex(keyHex[2:], zap.NewNop())
	require.NoError(t, err)

	expected := crypto.PubkeyToAddress(key.PublicKey)
	assert.Equal(t, expected, withPrefix.Address())
	assert.Equal(t, expected, withoutPrefix.Address())
}

func TestNewFromBytes(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s, err := NewECDSAInMemoryTransportSigner(crypto.FromECDSA(key), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	_, err = NewECDSAInMemoryTransportSigner([]byte{1, 2, 3}, zap.NewNop())
	require.Error(t, err)
}

func TestSignMessage_Deterministic(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := NewInMemoryTransportSigner(key, zap.NewNop())

	a, err := s.SignMessage([]byte("same"))
	require.NoError(t, err)
	b, err := s.SignMessage([]byte("same"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
