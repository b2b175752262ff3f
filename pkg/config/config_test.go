package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey     = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testAddress = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func validBusinessConfig() *BusinessConfig {
	return &BusinessConfig{
		BusinessAddress: testAddress,
		Host:            "0.0.0.0",
		Port:            7676,
		Chain: ChainConfig{
			ChainID: ChainId_EthereumAnvil,
			RpcUrl:  "http://localhost:8545",
		},
		Signer:      SignerConfig{Type: SignerTypePrivateKey, PrivateKey: testKey},
		Persistence: PersistenceConfig{Type: PersistenceTypeMemory},
	}
}

func validNodeConfig() *NodeConfig {
	return &NodeConfig{
		NodeAddress: testAddress,
		JobRegistry: testAddress,
		Chain: ChainConfig{
			ChainID: ChainId_EthereumSepolia,
			RpcUrl:  "http://localhost:8545",
		},
		Signer:      SignerConfig{Type: SignerTypePrivateKey, PrivateKey: testKey},
		Persistence: PersistenceConfig{Type: PersistenceTypeBadger, DataDir: "/tmp/node"},
	}
}

func Test_BusinessConfig(t *testing.T) {
	t.Run("valid config sets the chain name", func(t *testing.T) {
		cfg := validBusinessConfig()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, ChainName_EthereumAnvil, cfg.Chain.ChainName)
	})

	tests := []struct {
		name   string
		mutate func(c *BusinessConfig)
		field  string
	}{
		{"bad address", func(c *BusinessConfig) { c.BusinessAddress = "not-an-address" }, "business.businessAddress"},
		{"bad port", func(c *BusinessConfig) { c.Port = 70000 }, "business.port"},
		{"negative handshake timeout", func(c *BusinessConfig) { c.HandshakeTimeout = -time.Second }, "business.handshakeTimeout"},
		{"unsupported chain", func(c *BusinessConfig) { c.Chain.ChainID = 42 }, "business.chain.chainId"},
		{"missing rpc", func(c *BusinessConfig) { c.Chain.RpcUrl = "" }, "business.chain.rpcUrl"},
		{"short private key", func(c *BusinessConfig) { c.Signer.PrivateKey = "0x1234" }, "business.signer.privateKey"},
		{"unknown signer", func(c *BusinessConfig) { c.Signer.Type = "ledger" }, "business.signer.type"},
		{"kms without key id", func(c *BusinessConfig) { c.Signer = SignerConfig{Type: SignerTypeAWSKMS} }, "business.signer.awsKmsKeyId"},
		{"redis without address", func(c *BusinessConfig) { c.Persistence = PersistenceConfig{Type: PersistenceTypeRedis} }, "business.persistence.redisAddress"},
		{"unknown persistence", func(c *BusinessConfig) { c.Persistence.Type = "postgres" }, "business.persistence.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBusinessConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("errors are aggregated", func(t *testing.T) {
		cfg := validBusinessConfig()
		cfg.Port = -1
		cfg.Chain.RpcUrl = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "business.port")
		assert.Contains(t, err.Error(), "business.chain.rpcUrl")
	})
}

func Test_NodeConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		require.NoError(t, validNodeConfig().Validate())
	})

	t.Run("master url override", func(t *testing.T) {
		cfg := validNodeConfig()
		cfg.MasterURL = "ws://127.0.0.1:7676/"
		require.NoError(t, cfg.Validate())

		cfg.MasterURL = "http://127.0.0.1:7676/"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "node.masterUrl")
	})

	t.Run("missing registry", func(t *testing.T) {
		cfg := validNodeConfig()
		cfg.JobRegistry = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "node.jobRegistry")
	})

	t.Run("badger without data dir", func(t *testing.T) {
		cfg := validNodeConfig()
		cfg.Persistence.DataDir = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "node.persistence.dataDir")
	})

	t.Run("web3signer", func(t *testing.T) {
		cfg := validNodeConfig()
		cfg.Signer = SignerConfig{Type: SignerTypeWeb3Signer}
		require.Error(t, cfg.Validate())

		cfg.Signer.Web3Signer = &RemoteSignerConfig{Url: "http://localhost:9000", FromAddress: testAddress}
		require.NoError(t, cfg.Validate())

		cfg.Signer.Web3Signer.Cert = "/tmp/cert.pem"
		require.Error(t, cfg.Validate())
	})
}

func Test_ChainTables(t *testing.T) {
	for _, id := range GetSupportedChainIDs() {
		name, ok := ChainIdToName[id]
		require.True(t, ok)
		assert.Equal(t, id, ChainNameToId[name])
		assert.Greater(t, GetPollIntervalForChain(id), time.Duration(0))
	}
	assert.Contains(t, GetSupportedChainIDsString(), "31337")
}
