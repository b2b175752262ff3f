// Package bootstrap builds the configured signer, persistence backend and
// identity resolver for the peer binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/workorder-peering-go/internal/aws"
	"github.com/Layr-Labs/workorder-peering-go/pkg/clients/web3signer"
	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/Layr-Labs/workorder-peering-go/pkg/contractCaller"
	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/Layr-Labs/workorder-peering-go/pkg/peering/localPeeringDataFetcher"
	"github.com/Layr-Labs/workorder-peering-go/pkg/peering/peeringDataFetcher"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence/badger"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence/memory"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence/redis"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner/awsKmsTransportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner/inMemoryTransportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner/web3SignerTransportSigner"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

func NewTransportSigner(ctx context.Context, cfg *config.SignerConfig, logger *zap.Logger) (transportSigner.ITransportSigner, error) {
	switch cfg.Type {
	case config.SignerTypePrivateKey:
		signer, err := inMemoryTransportSigner.NewECDSAInMemoryTransportSignerFromHex(cfg.PrivateKey, logger)
		if err != nil {
			return nil, err
		}
		return signer, nil

	case config.SignerTypeAWSKMS:
		awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		if arn, err := aws.CallerArn(ctx, awsCfg); err != nil {
			logger.Sugar().Warnw("Could not determine aws caller identity", "error", err)
		} else {
			logger.Sugar().Infow("Using aws identity", "arn", arn)
		}
		signer, err := awsKmsTransportSigner.NewAWSKMSTransportSignerFromConfig(ctx, awsCfg, cfg.AWSKMSKeyID, logger)
		if err != nil {
			return nil, err
		}
		return signer, nil

	case config.SignerTypeWeb3Signer:
		client, err := web3signer.NewWeb3SignerClientFromRemoteSignerConfig(ctx, cfg.Web3Signer, logger)
		if err != nil {
			return nil, err
		}
		signer, err := web3SignerTransportSigner.NewWeb3SignerTransportSigner(ctx, client, common.HexToAddress(cfg.Web3Signer.FromAddress), logger)
		if err != nil {
			client.Close()
			return nil, err
		}
		return signer, nil

	default:
		return nil, fmt.Errorf("unsupported signer type %q", cfg.Type)
	}
}

func NewPersistence(cfg *config.PersistenceConfig, logger *zap.Logger) (persistence.IPeeringPersistence, error) {
	switch cfg.Type {
	case config.PersistenceTypeMemory, "":
		return memory.NewMemoryPersistence(logger), nil
	case config.PersistenceTypeBadger:
		store, err := badger.NewBadgerPersistence(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.PersistenceTypeRedis:
		store, err := redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.Type)
	}
}

// NewPeeringDataFetcher prefers the local peering file over chain lookups
func NewPeeringDataFetcher(cfg *config.ChainConfig, chain contractCaller.IContractCaller, logger *zap.Logger) (peering.IPeeringDataFetcher, error) {
	if cfg.PeeringFile != "" {
		fetcher, err := localPeeringDataFetcher.NewLocalPeeringDataFetcherFromFile(cfg.PeeringFile, logger)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	}
	if chain == nil {
		return nil, fmt.Errorf("no peering file configured and no chain client available")
	}
	return peeringDataFetcher.NewPeeringDataFetcher(chain, logger), nil
}
