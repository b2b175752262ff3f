package awsKms

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/workorder-peering-go/internal/keyGenerator"
	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner/awsKmsTransportSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KMSKeyAPI is the subset of the AWS KMS client used to provision wallet keys
type KMSKeyAPI interface {
	awsKmsTransportSigner.KMSAPI
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
}

// AWSKMSKeyGenerator creates ECC_SECG_P256K1 signing keys whose private half
// never leaves KMS.
type AWSKMSKeyGenerator struct {
	logger    *zap.Logger
	kmsClient KMSKeyAPI
	awsRegion string
	chainName config.ChainName
}

var _ keyGenerator.IKeyGenerator = (*AWSKMSKeyGenerator)(nil)

func NewAWSKMSKeyGeneratorFromConfig(awsCfg aws.Config, chainName config.ChainName, logger *zap.Logger) *AWSKMSKeyGenerator {
	return NewAWSKMSKeyGenerator(kms.NewFromConfig(awsCfg), awsCfg.Region, chainName, logger)
}

func NewAWSKMSKeyGenerator(client KMSKeyAPI, awsRegion string, chainName config.ChainName, logger *zap.Logger) *AWSKMSKeyGenerator {
	return &AWSKMSKeyGenerator{
		logger:    logger,
		kmsClient: client,
		awsRegion: awsRegion,
		chainName: chainName,
	}
}

func (a *AWSKMSKeyGenerator) GenerateWalletKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedWalletKey, error) {
	keyRes, err := a.createWalletSigningKey(ctx, keyName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create wallet key %s in region %s", keyName, a.awsRegion)
	}
	keyId := aws.ToString(keyRes.KeyMetadata.KeyId)

	if aliasName != "" {
		_, err = a.kmsClient.CreateAlias(ctx, &kms.CreateAliasInput{
			AliasName:   aws.String(fmt.Sprintf("alias/%s", aliasName)),
			TargetKeyId: aws.String(keyId),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create alias %s for key %s", aliasName, keyId)
		}
	}

	return a.GetWalletKeyById(ctx, keyId)
}

func (a *AWSKMSKeyGenerator) GetWalletKeyById(ctx context.Context, keyId string) (*keyGenerator.GeneratedWalletKey, error) {
	signer, err := awsKmsTransportSigner.NewAWSKMSTransportSigner(ctx, a.kmsClient, keyId, a.logger)
	if err != nil {
		return nil, err
	}
	return &keyGenerator.GeneratedWalletKey{
		KeyId:   keyId,
		Address: signer.Address(),
	}, nil
}

func (a *AWSKMSKeyGenerator) createWalletSigningKey(ctx context.Context, keyName string) (*kms.CreateKeyOutput, error) {
	return a.kmsClient.CreateKey(ctx, &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     types.KeySpecEccSecgP256k1,
		Description: aws.String(fmt.Sprintf("Work order peering wallet key - %s", keyName)),
		Tags: []types.Tag{
			{TagKey: aws.String("Name"), TagValue: aws.String(keyName)},
			{TagKey: aws.String("Environment"), TagValue: aws.String(string(a.chainName))},
			{TagKey: aws.String("Purpose"), TagValue: aws.String("peer-wallet")},
			{TagKey: aws.String("Curve"), TagValue: aws.String("secp256k1")},
		},
	})
}
