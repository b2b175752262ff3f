package cliflags

import (
	"fmt"
	"io"

	"github.com/Layr-Labs/workorder-peering-go/internal/aws"
	"github.com/Layr-Labs/workorder-peering-go/internal/keyGenerator"
	"github.com/Layr-Labs/workorder-peering-go/internal/keyGenerator/awsKms"
	"github.com/Layr-Labs/workorder-peering-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/Layr-Labs/workorder-peering-go/pkg/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	FlagKeyType  = "type"
	FlagKeyName  = "name"
	FlagKeyAlias = "alias"

	KeyTypeLocal  = "local"
	KeyTypeAWSKMS = "aws-kms"
)

// KeygenCommand creates a wallet key for an identity owner and prints its
// address. Local keys print the private key as well.
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Create a secp256k1 wallet key",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  FlagKeyType,
				Usage: "Key backend: local or aws-kms",
				Value: KeyTypeLocal,
			},
			&cli.StringFlag{
				Name:  FlagKeyName,
				Usage: "Key name, stored as the Name tag in KMS",
				Value: "peer-wallet",
			},
			&cli.StringFlag{
				Name:  FlagKeyAlias,
				Usage: "KMS alias (without the alias/ prefix)",
			},
			&cli.StringFlag{
				Name:    FlagAWSRegion,
				Usage:   "AWS region override",
				EnvVars: []string{config.EnvAWSRegion},
			},
			&cli.Uint64Flag{
				Name:  FlagChainID,
				Usage: "Chain the key is tagged for",
				Value: uint64(config.ChainId_EthereumAnvil),
			},
			VerboseFlag(),
		},
		Action: runKeygen,
	}
}

func runKeygen(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool(FlagVerbose)})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	gen, err := newKeyGenerator(c, l)
	if err != nil {
		return err
	}
	key, err := gen.GenerateWalletKey(c.Context, c.String(FlagKeyName), c.String(FlagKeyAlias))
	if err != nil {
		return err
	}
	printWalletKey(c.App.Writer, key)
	return nil
}

func newKeyGenerator(c *cli.Context, l *zap.Logger) (keyGenerator.IKeyGenerator, error) {
	switch c.String(FlagKeyType) {
	case KeyTypeLocal:
		return localKeyGenerator.NewLocalKeyGenerator(l), nil
	case KeyTypeAWSKMS:
		chainName, ok := config.ChainIdToName[config.ChainId(c.Uint64(FlagChainID))]
		if !ok {
			return nil, fmt.Errorf("unsupported chain id %d", c.Uint64(FlagChainID))
		}
		awsCfg, err := aws.LoadAWSConfig(c.Context, c.String(FlagAWSRegion))
		if err != nil {
			return nil, err
		}
		return awsKms.NewAWSKMSKeyGeneratorFromConfig(awsCfg, chainName, l), nil
	default:
		return nil, fmt.Errorf("unknown key type %q", c.String(FlagKeyType))
	}
}

func printWalletKey(w io.Writer, key *keyGenerator.GeneratedWalletKey) {
	_, _ = fmt.Fprintf(w, "key id:      %s\n", key.KeyId)
	_, _ = fmt.Fprintf(w, "address:     %s\n", key.Address.Hex())
	if key.PrivateKeyHex != "" {
		_, _ = fmt.Fprintf(w, "private key: %s\n", key.PrivateKeyHex)
	}
}
