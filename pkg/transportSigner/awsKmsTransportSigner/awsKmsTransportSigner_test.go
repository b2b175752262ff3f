package awsKmsTransportSigner

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeKMS signs with a local key and returns DER encoded values the way KMS does
type fakeKMS struct {
	key     *cryptoEcdsa.PrivateKey
	highS   bool
	signErr error
}

func (f *fakeKMS) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	der, err := MarshalPublicKeyDER(&f.key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{KeyId: params.KeyId, PublicKey: der}, nil
}

func (f *fakeKMS) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := crypto.Sign(params.Message, f.key)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if f.highS {
		s = new(big.Int).Sub(secp256k1N, s)
	}
	der, err := asn1.Marshal(struct {
		R *big.Int
		S *big.Int
	}{R: r, S: s})
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{KeyId: params.KeyId, Signature: der}, nil
}

func newFake(t *testing.T) *fakeKMS {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeKMS{key: key}
}

func TestAWSKMSTransportSigner_SignAndRecover(t *testing.T) {
	fake := newFake(t)
	signer, err := NewAWSKMSTransportSigner(context.Background(), fake, "test-key", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(fake.key.PublicKey), signer.Address())

	msg := []byte("1702857600-deadbeef")
	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	recovered, err := transportSigner.RecoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestAWSKMSTransportSigner_CanonicalizesHighS(t *testing.T) {
	fake := newFake(t)
	fake.highS = true
	signer, err := NewAWSKMSTransportSigner(context.Background(), fake, "test-key", zap.NewNop())
	require.NoError(t, err)

	msg := []byte("payload")
	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)

	s := new(big.Int).SetBytes(sig[32:64])
	assert.True(t, s.Cmp(new(big.Int).Rsh(secp256k1N, 1)) <= 0)

	recovered, err := transportSigner.RecoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestAWSKMSTransportSigner_Errors(t *testing.T) {
	t.Run("empty key id", func(t *testing.T) {
		_, err := NewAWSKMSTransportSigner(context.Background(), newFake(t), "", zap.NewNop())
		require.Error(t, err)
	})

	t.Run("sign failure", func(t *testing.T) {
		fake := newFake(t)
		signer, err := NewAWSKMSTransportSigner(context.Background(), fake, "test-key", zap.NewNop())
		require.NoError(t, err)

		fake.signErr = errors.New("throttled")
		_, err = signer.SignMessage([]byte("payload"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "throttled")
	})
}
