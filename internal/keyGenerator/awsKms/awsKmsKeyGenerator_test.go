package awsKms

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"errors"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner/awsKmsTransportSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeKeyKMS struct {
	keys    map[string]*cryptoEcdsa.PrivateKey
	aliases map[string]string
	created []*kms.CreateKeyInput
}

func newFakeKeyKMS() *fakeKeyKMS {
	return &fakeKeyKMS{keys: map[string]*cryptoEcdsa.PrivateKey{}, aliases: map[string]string{}}
}

func (f *fakeKeyKMS) CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	id := crypto.PubkeyToAddress(key.PublicKey).Hex()
	f.keys[id] = key
	f.created = append(f.created, params)
	return &kms.CreateKeyOutput{KeyMetadata: &types.KeyMetadata{KeyId: aws.String(id)}}, nil
}

func (f *fakeKeyKMS) CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error) {
	f.aliases[aws.ToString(params.AliasName)] = aws.ToString(params.TargetKeyId)
	return &kms.CreateAliasOutput{}, nil
}

func (f *fakeKeyKMS) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	key, ok := f.keys[aws.ToString(params.KeyId)]
	if !ok {
		return nil, errors.New("NotFoundException")
	}
	der, err := awsKmsTransportSigner.MarshalPublicKeyDER(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{KeyId: params.KeyId, PublicKey: der}, nil
}

func (f *fakeKeyKMS) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	return nil, errors.New("not used")
}

func Test_AWSKMSKeyGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a secp256k1 key with an alias", func(t *testing.T) {
		fake := newFakeKeyKMS()
		g := NewAWSKMSKeyGenerator(fake, "us-east-1", config.ChainName_EthereumSepolia, zap.NewNop())

		key, err := g.GenerateWalletKey(ctx, "acme", "acme-master")
		require.NoError(t, err)
		assert.Empty(t, key.PrivateKeyHex)
		assert.Equal(t, crypto.PubkeyToAddress(fake.keys[key.KeyId].PublicKey), key.Address)
		assert.Equal(t, key.KeyId, fake.aliases["alias/acme-master"])

		require.Len(t, fake.created, 1)
		assert.Equal(t, types.KeySpecEccSecgP256k1, fake.created[0].KeySpec)
		assert.Equal(t, types.KeyUsageTypeSignVerify, fake.created[0].KeyUsage)
	})

	t.Run("no alias", func(t *testing.T) {
		fake := newFakeKeyKMS()
		g := NewAWSKMSKeyGenerator(fake, "us-east-1", config.ChainName_EthereumAnvil, zap.NewNop())
		_, err := g.GenerateWalletKey(ctx, "node", "")
		require.NoError(t, err)
		assert.Empty(t, fake.aliases)
	})

	t.Run("unknown key id", func(t *testing.T) {
		g := NewAWSKMSKeyGenerator(newFakeKeyKMS(), "us-east-1", config.ChainName_EthereumAnvil, zap.NewNop())
		_, err := g.GetWalletKeyById(ctx, "missing")
		assert.Error(t, err)
	})
}
