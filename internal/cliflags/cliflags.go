// Package cliflags holds the flags both peer binaries share.
package cliflags

import (
	"fmt"

	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/urfave/cli/v2"
)

const (
	FlagChainID        = "chain-id"
	FlagRPCURL         = "rpc-url"
	FlagPeeringFile    = "peering-file"
	FlagSignerType     = "signer"
	FlagPrivateKey     = "private-key"
	FlagAWSKMSKeyID    = "aws-kms-key-id"
	FlagAWSRegion      = "aws-region"
	FlagWeb3SignerURL  = "web3signer-url"
	FlagWeb3SignerFrom = "web3signer-from"
	FlagWeb3SignerCA   = "web3signer-ca-cert"
	FlagWeb3SignerCert = "web3signer-cert"
	FlagWeb3SignerKey  = "web3signer-key"
	FlagPersistence    = "persistence"
	FlagDataDir        = "data-dir"
	FlagRedisAddress   = "redis-address"
	FlagRedisPassword  = "redis-password"
	FlagRedisDB        = "redis-db"
	FlagRedisPrefix    = "redis-key-prefix"
	FlagVerbose        = "verbose"
)

func ChainFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:     FlagChainID,
			Aliases:  []string{"chain"},
			Usage:    fmt.Sprintf("Ethereum chain ID: %s", config.GetSupportedChainIDsString()),
			EnvVars:  []string{config.EnvChainID},
			Required: true,
		},
		&cli.StringFlag{
			Name:    FlagRPCURL,
			Aliases: []string{"rpc"},
			Usage:   "Ethereum RPC endpoint URL",
			Value:   "http://localhost:8545",
			EnvVars: []string{config.EnvRPCURL},
		},
		&cli.StringFlag{
			Name:    FlagPeeringFile,
			Usage:   "JSON file of identity records used instead of on-chain owner lookups",
			EnvVars: []string{config.EnvPeeringFile},
		},
	}
}

func SignerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagSignerType,
			Usage:   "Wallet signer: private-key, aws-kms or web3signer",
			Value:   string(config.SignerTypePrivateKey),
			EnvVars: []string{config.EnvSignerType},
		},
		&cli.StringFlag{
			Name:    FlagPrivateKey,
			Usage:   "Wallet private key (hex)",
			EnvVars: []string{config.EnvPrivateKey},
		},
		&cli.StringFlag{
			Name:    FlagAWSKMSKeyID,
			Usage:   "AWS KMS key id of an ECC_SECG_P256K1 wallet key",
			EnvVars: []string{config.EnvAWSKMSKeyID},
		},
		&cli.StringFlag{
			Name:    FlagAWSRegion,
			Usage:   "AWS region override",
			EnvVars: []string{config.EnvAWSRegion},
		},
		&cli.StringFlag{
			Name:    FlagWeb3SignerURL,
			Usage:   "Web3Signer JSON-RPC url",
			EnvVars: []string{config.EnvWeb3SignerURL},
		},
		&cli.StringFlag{
			Name:    FlagWeb3SignerFrom,
			Usage:   "Wallet address held by Web3Signer",
			EnvVars: []string{config.EnvWeb3SignerFrom},
		},
		&cli.StringFlag{Name: FlagWeb3SignerCA, Usage: "Web3Signer CA certificate (PEM)"},
		&cli.StringFlag{Name: FlagWeb3SignerCert, Usage: "Web3Signer client certificate (PEM)"},
		&cli.StringFlag{Name: FlagWeb3SignerKey, Usage: "Web3Signer client key (PEM)"},
	}
}

func PersistenceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagPersistence,
			Usage:   "State backend: memory, badger or redis",
			Value:   string(config.PersistenceTypeMemory),
			EnvVars: []string{config.EnvPersistence},
		},
		&cli.StringFlag{
			Name:    FlagDataDir,
			Usage:   "Badger data directory",
			EnvVars: []string{config.EnvDataDir},
		},
		&cli.StringFlag{
			Name:    FlagRedisAddress,
			Usage:   "Redis host:port",
			EnvVars: []string{config.EnvRedisAddress},
		},
		&cli.StringFlag{
			Name:    FlagRedisPassword,
			Usage:   "Redis password",
			EnvVars: []string{config.EnvRedisPassword},
		},
		&cli.IntFlag{
			Name:    FlagRedisDB,
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvRedisDB},
		},
		&cli.StringFlag{
			Name:  FlagRedisPrefix,
			Usage: "Prefix for every redis key",
		},
	}
}

func VerboseFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    FlagVerbose,
		Usage:   "Enable verbose logging",
		EnvVars: []string{config.EnvDebug},
	}
}

func ParseChainConfig(c *cli.Context) config.ChainConfig {
	return config.ChainConfig{
		ChainID:     config.ChainId(c.Uint64(FlagChainID)),
		RpcUrl:      c.String(FlagRPCURL),
		PeeringFile: c.String(FlagPeeringFile),
	}
}

func ParseSignerConfig(c *cli.Context) config.SignerConfig {
	sc := config.SignerConfig{
		Type:        config.SignerType(c.String(FlagSignerType)),
		PrivateKey:  c.String(FlagPrivateKey),
		AWSKMSKeyID: c.String(FlagAWSKMSKeyID),
		AWSRegion:   c.String(FlagAWSRegion),
	}
	if sc.Type == config.SignerTypeWeb3Signer {
		sc.Web3Signer = &config.RemoteSignerConfig{
			Url:         c.String(FlagWeb3SignerURL),
			FromAddress: c.String(FlagWeb3SignerFrom),
			CACert:      c.String(FlagWeb3SignerCA),
			Cert:        c.String(FlagWeb3SignerCert),
			Key:         c.String(FlagWeb3SignerKey),
		}
	}
	return sc
}

func ParsePersistenceConfig(c *cli.Context) config.PersistenceConfig {
	return config.PersistenceConfig{
		Type:           config.PersistenceType(c.String(FlagPersistence)),
		DataDir:        c.String(FlagDataDir),
		RedisAddress:   c.String(FlagRedisAddress),
		RedisPassword:  c.String(FlagRedisPassword),
		RedisDB:        c.Int(FlagRedisDB),
		RedisKeyPrefix: c.String(FlagRedisPrefix),
	}
}
