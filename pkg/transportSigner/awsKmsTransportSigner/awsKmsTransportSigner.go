package awsKmsTransportSigner

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultSignTimeout = 10 * time.Second

// secp256k1 curve order, used for low-S canonicalization
var secp256k1N, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

// KMSAPI is the subset of the AWS KMS client used for signing
type KMSAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// AWSKMSTransportSigner signs with an ECC_SECG_P256K1 key held in AWS KMS.
// The private key never leaves KMS; the wallet address is derived from the
// key's public half at construction time.
type AWSKMSTransportSigner struct {
	logger      *zap.Logger
	kmsClient   KMSAPI
	keyId       string
	publicKey   *cryptoEcdsa.PublicKey
	address     common.Address
	signTimeout time.Duration
}

var _ transportSigner.ITransportSigner = (*AWSKMSTransportSigner)(nil)

func NewAWSKMSTransportSignerFromConfig(ctx context.Context, awsCfg aws.Config, keyId string, logger *zap.Logger) (*AWSKMSTransportSigner, error) {
	return NewAWSKMSTransportSigner(ctx, kms.NewFromConfig(awsCfg), keyId, logger)
}

func NewAWSKMSTransportSigner(ctx context.Context, kmsClient KMSAPI, keyId string, logger *zap.Logger) (*AWSKMSTransportSigner, error) {
	if keyId == "" {
		return nil, fmt.Errorf("kms key id cannot be empty")
	}

	out, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyId)
	}

	pubKey, err := parseECDSAPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", keyId)
	}

	address := crypto.PubkeyToAddress(*pubKey)
	logger.Sugar().Infow("Loaded KMS transport signer", "key_id", keyId, "address", address.Hex())

	return &AWSKMSTransportSigner{
		logger:      logger,
		kmsClient:   kmsClient,
		keyId:       keyId,
		publicKey:   pubKey,
		address:     address,
		signTimeout: defaultSignTimeout,
	}, nil
}

func (a *AWSKMSTransportSigner) Address() common.Address {
	return a.address
}

func (a *AWSKMSTransportSigner) SignMessage(data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.signTimeout)
	defer cancel()

	return a.signDigest(ctx, transportSigner.HashMessage(data))
}

func (a *AWSKMSTransportSigner) signDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("hash must be exactly 32 bytes, got %d", len(digest))
	}

	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          digest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "kms sign failed for key %s", a.keyId)
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(signOutput.Signature, &sigAsn1); err != nil {
		return nil, errors.Wrap(err, "failed to parse DER signature")
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)

	halfOrder := new(big.Int).Rsh(secp256k1N, 1)
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	rBytes := r.FillBytes(make([]byte, 32))
	sBytes := s.FillBytes(make([]byte, 32))

	// crypto.Ecrecover expects 0-1, wallets emit 27-28
	for recoveryId := 0; recoveryId < 2; recoveryId++ {
		signature := make([]byte, 65)
		copy(signature[0:32], rBytes)
		copy(signature[32:64], sBytes)
		signature[64] = byte(recoveryId)

		recovered, err := crypto.SigToPub(digest, signature)
		if err != nil {
			a.logger.Debug("Ecrecover failed", zap.Int("recoveryId", recoveryId), zap.Error(err))
			continue
		}
		if recovered.X.Cmp(a.publicKey.X) == 0 && recovered.Y.Cmp(a.publicKey.Y) == 0 {
			signature[64] += 27
			return signature, nil
		}
	}

	return nil, fmt.Errorf("could not determine valid recovery ID - signature recovery failed")
}

// parseECDSAPublicKey parses the DER-encoded SubjectPublicKeyInfo returned by KMS
func parseECDSAPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &asn1pubk); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}

	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

var (
	oidEcPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// MarshalPublicKeyDER encodes pub as the SubjectPublicKeyInfo KMS returns
// from GetPublicKey.
func MarshalPublicKeyDER(pub *cryptoEcdsa.PublicKey) ([]byte, error) {
	raw := crypto.FromECDSAPub(pub)
	return asn1.Marshal(asn1EcPublicKey{
		EcPublicKeyInfo: asn1EcPublicKeyInfo{
			Algorithm:  oidEcPublicKey,
			Parameters: oidSecp256k1,
		},
		PublicKey: asn1.BitString{Bytes: raw, BitLength: len(raw) * 8},
	})
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}
