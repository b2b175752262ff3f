package transportSigner_test

import (
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner/inMemoryTransportSigner"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSigner(t *testing.T) *inMemoryTransportSigner.InMemoryTransportSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return inMemoryTransportSigner.NewInMemoryTransportSigner(key, zap.NewNop())
}

func TestRecoverSigner_RoundTrip(t *testing.T) {
	signer := newSigner(t)
	msg := []byte("1702857600-a1b2c3d4")

	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, transportSigner.SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := transportSigner.RecoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestRecoverSigner_DoesNotMutateSignature(t *testing.T) {
	signer := newSigner(t)
	msg := []byte("hello")

	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)
	original := append([]byte(nil), sig...)

	_, err = transportSigner.RecoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, original, sig)
}

func TestRecoverSigner_AcceptsZeroBasedRecoveryId(t *testing.T) {
	signer := newSigner(t)
	msg := []byte("hello")

	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)
	sig[64] -= 27

	recovered, err := transportSigner.RecoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestRecoverSigner_Mutations(t *testing.T) {
	signer := newSigner(t)
	msg := []byte("challenge-payload")
	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)

	t.Run("mutated message", func(t *testing.T) {
		mutated := append([]byte(nil), msg...)
		mutated[0] ^= 0x01
		recovered, err := transportSigner.RecoverSigner(mutated, sig)
		if err == nil {
			assert.NotEqual(t, signer.Address(), recovered)
		}
	})

	t.Run("mutated signature", func(t *testing.T) {
		mutated := append([]byte(nil), sig...)
		mutated[10] ^= 0x01
		recovered, err := transportSigner.RecoverSigner(msg, mutated)
		if err == nil {
			assert.NotEqual(t, signer.Address(), recovered)
		}
	})

	t.Run("bad length", func(t *testing.T) {
		_, err := transportSigner.RecoverSigner(msg, sig[:64])
		require.ErrorIs(t, err, transportSigner.ErrInvalidSignature)
	})

	t.Run("bad recovery id", func(t *testing.T) {
		mutated := append([]byte(nil), sig...)
		mutated[64] = 35
		_, err := transportSigner.RecoverSigner(msg, mutated)
		require.ErrorIs(t, err, transportSigner.ErrInvalidSignature)
	})
}

func TestVerifySignedMessage(t *testing.T) {
	signer := newSigner(t)
	other := newSigner(t)

	signed, err := transportSigner.CreateSignedMessage(signer, []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, transportSigner.VerifySignedMessage(signed, signer.Address()))
	require.ErrorIs(t, transportSigner.VerifySignedMessage(signed, other.Address()), transportSigner.ErrInvalidSignature)
	require.Error(t, transportSigner.VerifySignedMessage(nil, signer.Address()))
}
