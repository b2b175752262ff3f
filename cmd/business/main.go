package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/workorder-peering-go/internal/bootstrap"
	"github.com/Layr-Labs/workorder-peering-go/internal/cliflags"
	"github.com/Layr-Labs/workorder-peering-go/pkg/business"
	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/Layr-Labs/workorder-peering-go/pkg/contractCaller/caller"
	"github.com/Layr-Labs/workorder-peering-go/pkg/logger"
	"github.com/Layr-Labs/workorder-peering-go/pkg/session"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transport"
	"github.com/Layr-Labs/workorder-peering-go/pkg/workorder"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "business-address",
			Aliases:  []string{"addr"},
			Usage:    "On-chain Business identity the master serves",
			EnvVars:  []string{config.EnvBusinessAddress},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Listen host",
			Value:   "0.0.0.0",
			EnvVars: []string{config.EnvBusinessHost},
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Websocket listen port (node_ws_port in the Business info)",
			Value:   7676,
			EnvVars: []string{config.EnvBusinessPort},
		},
		&cli.DurationFlag{
			Name:    "handshake-timeout",
			Usage:   "Time a connected node has to authenticate",
			Value:   session.DefaultHandshakeTimeout,
			EnvVars: []string{config.EnvBusinessHandshakeTimeout},
		},
		&cli.Float64Flag{
			Name:    "accept-rate",
			Usage:   "New connections accepted per second, 0 disables limiting",
			Value:   transport.DefaultListenerConfig().AcceptRate,
			EnvVars: []string{config.EnvBusinessAcceptRate},
		},
		cliflags.VerboseFlag(),
	}
	flags = append(flags, cliflags.ChainFlags()...)
	flags = append(flags, cliflags.SignerFlags()...)
	flags = append(flags, cliflags.PersistenceFlags()...)

	app := &cli.App{
		Name:  "business",
		Usage: "Business side of work order peering",
		Description: `Runs the Business master: worker nodes connect over websocket,
both sides prove wallet ownership of their on-chain identities, and
authenticated nodes fetch and accept work orders for job posts.`,
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:   "master",
				Usage:  "Serve worker nodes",
				Flags:  flags,
				Action: runMaster,
			},
			cliflags.KeygenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func parseBusinessConfig(c *cli.Context) *config.BusinessConfig {
	return &config.BusinessConfig{
		BusinessAddress:  c.String("business-address"),
		Host:             c.String("host"),
		Port:             c.Int("port"),
		HandshakeTimeout: c.Duration("handshake-timeout"),
		AcceptRate:       c.Float64("accept-rate"),
		Chain:            cliflags.ParseChainConfig(c),
		Signer:           cliflags.ParseSignerConfig(c),
		Persistence:      cliflags.ParsePersistenceConfig(c),
		Debug:            c.Bool(cliflags.FlagVerbose),
	}
}

func runMaster(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool(cliflags.FlagVerbose)})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseBusinessConfig(c)
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

	identity := common.HexToAddress(cfg.BusinessAddress)
	factory := workorder.NewDerivedWorkOrderFactory(identity, chain, l)
	registry, err := workorder.NewRegistry(factory, store, l)
	if err != nil {
		return fmt.Errorf("failed to load work order offers: %w", err)
	}
	handler := workorder.NewHandler(registry, workorder.NewLedger(store, l), l)

	listenerCfg := transport.DefaultListenerConfig()
	listenerCfg.AcceptRate = cfg.AcceptRate

	master := business.NewMaster(business.Config{
		Identity:         identity,
		Listener:         listenerCfg,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, signer, resolver, handler, l)

	if err := master.VerifyRegistration(ctx); err != nil {
		return err
	}
	if err := master.Start(cfg.Host, cfg.Port); err != nil {
		return fmt.Errorf("failed to start master: %w", err)
	}
	l.Sugar().Infow("Business master running", "business", identity.Hex(), "url", master.URL())
	l.Sugar().Info("Press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return master.Stop(shutdownCtx)
}
