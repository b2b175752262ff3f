package web3signer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultRequestTimeout = 10 * time.Second

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:9000",
		Timeout: DefaultRequestTimeout,
	}
}

type Client struct {
	rpcClient *rpc.Client
	logger    *zap.Logger
}

func NewClient(ctx context.Context, cfg *Config, logger *zap.Logger) (*Client, error) {
	return newClient(ctx, cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// NewWeb3SignerClientFromRemoteSignerConfig builds a client with optional
// mutual TLS from the remote signer section of a signer config.
func NewWeb3SignerClientFromRemoteSignerConfig(ctx context.Context, rsc *config.RemoteSignerConfig, logger *zap.Logger) (*Client, error) {
	if rsc == nil {
		return nil, fmt.Errorf("remote signer config is nil")
	}
	if err := rsc.Validate(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.BaseURL = rsc.Url

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if rsc.CACert != "" || rsc.Cert != "" {
		tlsConfig, err := buildTLSConfig(rsc)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return newClient(ctx, cfg, httpClient, logger)
}

func newClient(ctx context.Context, cfg *Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	rpcClient, err := rpc.DialOptions(ctx, cfg.BaseURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial web3signer at %s", cfg.BaseURL)
	}
	logger.Sugar().Debugw("Created web3signer client", "url", cfg.BaseURL)
	return &Client{rpcClient: rpcClient, logger: logger}, nil
}

func buildTLSConfig(rsc *config.RemoteSignerConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if rsc.CACert != "" {
		pem, err := os.ReadFile(rsc.CACert)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read web3signer CA certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", rsc.CACert)
		}
		tlsConfig.RootCAs = pool
	}
	if rsc.Cert != "" {
		cert, err := tls.LoadX509KeyPair(rsc.Cert, rsc.Key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load web3signer client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func (c *Client) EthAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := c.rpcClient.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, errors.Wrap(err, "eth_accounts failed")
	}
	return accounts, nil
}

func (c *Client) EthSign(ctx context.Context, account common.Address, data []byte) (hexutil.Bytes, error) {
	var sig hexutil.Bytes
	if err := c.rpcClient.CallContext(ctx, &sig, "eth_sign", account, hexutil.Bytes(data)); err != nil {
		return nil, errors.Wrapf(err, "eth_sign failed for %s", account.Hex())
	}
	return sig, nil
}

func (c *Client) Close() {
	c.rpcClient.Close()
}
