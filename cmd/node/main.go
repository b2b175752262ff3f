package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	EVMChainPoller "github.com/Layr-Labs/chain-indexer/pkg/chainPollers/evm"
	"github.com/Layr-Labs/chain-indexer/pkg/chainPollers/persistence/memory"
	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	chainIndexerConfig "github.com/Layr-Labs/chain-indexer/pkg/config"
	"github.com/Layr-Labs/chain-indexer/pkg/contractStore/inMemoryContractStore"
	"github.com/Layr-Labs/chain-indexer/pkg/transactionLogParser"
	"github.com/Layr-Labs/workorder-peering-go/internal/bootstrap"
	"github.com/Layr-Labs/workorder-peering-go/internal/cliflags"
	"github.com/Layr-Labs/workorder-peering-go/pkg/blockHandler"
	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/Layr-Labs/workorder-peering-go/pkg/contractCaller/caller"
	"github.com/Layr-Labs/workorder-peering-go/pkg/jobWatcher"
	"github.com/Layr-Labs/workorder-peering-go/pkg/logger"
	"github.com/Layr-Labs/workorder-peering-go/pkg/node"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "node-address",
			Aliases:  []string{"addr"},
			Usage:    "On-chain Node identity",
			EnvVars:  []string{config.EnvNodeAddress},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "job-registry",
			Usage:    "Contract emitting JobPostAdded events",
			EnvVars:  []string{config.EnvNodeRegistry},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "master-url",
			Usage:   "Dial this ws:// url instead of the employer's published endpoint",
			EnvVars: []string{config.EnvNodeMasterURL},
		},
		&cli.DurationFlag{
			Name:    "job-search-timeout",
			Usage:   "How long one job post search runs before it is restarted",
			Value:   node.DefaultJobSearchTimeout,
			EnvVars: []string{config.EnvNodeJobSearchTimout},
		},
		&cli.DurationFlag{
			Name:    "request-timeout",
			Usage:   "Timeout for each handshake, get and accept request",
			Value:   node.DefaultRequestTimeout,
			EnvVars: []string{config.EnvNodeRequestTimeout},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Block polling interval, defaults per chain",
			EnvVars: []string{config.EnvNodePollInterval},
		},
		cliflags.VerboseFlag(),
	}
	flags = append(flags, cliflags.ChainFlags()...)
	flags = append(flags, cliflags.SignerFlags()...)
	flags = append(flags, cliflags.PersistenceFlags()...)

	app := &cli.App{
		Name:  "node",
		Usage: "Worker node side of work order peering",
		Description: `Watches the job registry for new job posts, connects to the
employer's master, proves ownership of the node identity, verifies the
master the same way and accepts the offered work order.`,
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Watch for job posts and accept work orders",
				Flags:  flags,
				Action: runNode,
			},
			cliflags.KeygenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func parseNodeConfig(c *cli.Context) *config.NodeConfig {
	cfg := &config.NodeConfig{
		NodeAddress:      c.String("node-address"),
		JobRegistry:      c.String("job-registry"),
		MasterURL:        c.String("master-url"),
		JobSearchTimeout: c.Duration("job-search-timeout"),
		RequestTimeout:   c.Duration("request-timeout"),
		PollInterval:     c.Duration("poll-interval"),
		Chain:            cliflags.ParseChainConfig(c),
		Signer:           cliflags.ParseSignerConfig(c),
		Persistence:      cliflags.ParsePersistenceConfig(c),
		Debug:            c.Bool(cliflags.FlagVerbose),
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = config.GetPollIntervalForChain(cfg.Chain.ChainID)
	}
	return cfg
}

func runNode(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool(cliflags.FlagVerbose)})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseNodeConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	l.Sugar().Infow("Using chain", "name", cfg.Chain.ChainName, "chain_id", cfg.Chain.ChainID)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ethClient := ethereum.NewEthereumClient(&ethereum.EthereumClientConfig{
		BaseUrl:   cfg.Chain.RpcUrl,
		BlockType: ethereum.BlockType_Latest,
	}, l)
	chain, err := caller.NewContractCallerFromEthereumClient(ethClient, l)
	if err != nil {
		return fmt.Errorf("failed to create contract caller: %w", err)
	}

	resolver, err := bootstrap.NewPeeringDataFetcher(&cfg.Chain, chain, l)
	if err != nil {
		return err
	}
	signer, err := bootstrap.NewTransportSigner(ctx, &cfg.Signer, l)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	store, err := bootstrap.NewPersistence(&cfg.Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}
	defer func() { _ = store.Close() }()

	bh := blockHandler.NewBlockHandler(l)

	// job posts are read with explicit log filters, the parser only satisfies the poller
	cs := inMemoryContractStore.NewInMemoryContractStore(nil, l)
	logParser := transactionLogParser.NewTransactionLogParser(cs, l)

	poller, err := EVMChainPoller.NewEVMChainPoller(
		ethClient,
		logParser,
		&EVMChainPoller.EVMChainPollerConfig{
			ChainId:         chainIndexerConfig.ChainId(cfg.Chain.ChainID),
			PollingInterval: cfg.PollInterval,
		},
		memory.NewInMemoryChainPollerPersistence(), bh, l)
	if err != nil {
		return fmt.Errorf("failed to create chain poller: %w", err)
	}

	watcher := jobWatcher.NewWatcher(jobWatcher.Config{
		Registry: common.HexToAddress(cfg.JobRegistry),
	}, chain, bh, store, l)

	n := node.NewNode(node.Config{
		Identity:         common.HexToAddress(cfg.NodeAddress),
		MasterURL:        cfg.MasterURL,
		JobSearchTimeout: cfg.JobSearchTimeout,
		RequestTimeout:   cfg.RequestTimeout,
	}, signer, resolver, chain, watcher, l)

	if err := n.VerifyRegistration(ctx); err != nil {
		return err
	}
	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chain poller: %w", err)
	}
	return n.Run(ctx)
}
