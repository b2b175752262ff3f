package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names shared by both peers
const (
	EnvChainID        = "WOP_CHAIN_ID"
	EnvRPCURL         = "WOP_RPC_URL"
	EnvDebug          = "WOP_DEBUG"
	EnvPeeringFile    = "WOP_PEERING_FILE"
	EnvSignerType     = "WOP_SIGNER_TYPE"
	EnvPrivateKey     = "WOP_PRIVATE_KEY"
	EnvAWSKMSKeyID    = "WOP_AWS_KMS_KEY_ID"
	EnvAWSRegion      = "WOP_AWS_REGION"
	EnvWeb3SignerURL  = "WOP_WEB3SIGNER_URL"
	EnvWeb3SignerFrom = "WOP_WEB3SIGNER_FROM"
	EnvPersistence    = "WOP_PERSISTENCE"
	EnvDataDir        = "WOP_DATA_DIR"
	EnvRedisAddress   = "WOP_REDIS_ADDRESS"
	EnvRedisPassword  = "WOP_REDIS_PASSWORD"
	EnvRedisDB        = "WOP_REDIS_DB"
)

// Environment variable names for the Business master
const (
	EnvBusinessAddress          = "BUSINESS_ADDRESS"
	EnvBusinessHost             = "BUSINESS_HOST"
	EnvBusinessPort             = "BUSINESS_PORT"
	EnvBusinessHandshakeTimeout = "BUSINESS_HANDSHAKE_TIMEOUT"
	EnvBusinessAcceptRate       = "BUSINESS_ACCEPT_RATE"
)

// Environment variable names for the worker node
const (
	EnvNodeAddress         = "NODE_ADDRESS"
	EnvNodeRegistry        = "NODE_JOB_REGISTRY"
	EnvNodeMasterURL       = "NODE_MASTER_URL"
	EnvNodeJobSearchTimout = "NODE_JOB_SEARCH_TIMEOUT"
	EnvNodeRequestTimeout  = "NODE_REQUEST_TIMEOUT"
	EnvNodePollInterval    = "NODE_POLL_INTERVAL"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// GetPollIntervalForChain returns how often the node checks for new blocks
func GetPollIntervalForChain(chainId ChainId) time.Duration {
	switch chainId {
	case ChainId_EthereumMainnet, ChainId_EthereumSepolia:
		return 12 * time.Second
	case ChainId_EthereumAnvil:
		return 1 * time.Second
	default:
		return 1 * time.Second
	}
}

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumSepolia,
		ChainId_EthereumAnvil,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumAnvil)
}

type SignerType string

const (
	SignerTypePrivateKey SignerType = "private-key"
	SignerTypeAWSKMS     SignerType = "aws-kms"
	SignerTypeWeb3Signer SignerType = "web3signer"
)

type SignerConfig struct {
	Type SignerType `json:"type"`

	PrivateKey string `json:"private_key,omitempty"`

	AWSKMSKeyID string `json:"aws_kms_key_id,omitempty"`
	AWSRegion   string `json:"aws_region,omitempty"`

	Web3Signer *RemoteSignerConfig `json:"web3signer,omitempty"`
}

func (sc *SignerConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch sc.Type {
	case SignerTypePrivateKey:
		key := strings.TrimPrefix(sc.PrivateKey, "0x")
		if key == "" {
			allErrors = append(allErrors, field.Required(path.Child("privateKey"), "private key is required"))
		} else if len(key) != 64 {
			allErrors = append(allErrors, field.Invalid(path.Child("privateKey"), "<redacted>", fmt.Sprintf("must be 32 bytes (64 hex chars), got %d chars", len(key))))
		}
	case SignerTypeAWSKMS:
		if sc.AWSKMSKeyID == "" {
			allErrors = append(allErrors, field.Required(path.Child("awsKmsKeyId"), "KMS key id is required"))
		}
	case SignerTypeWeb3Signer:
		if sc.Web3Signer == nil {
			allErrors = append(allErrors, field.Required(path.Child("web3signer"), "web3signer config is required"))
		} else if err := sc.Web3Signer.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(path.Child("web3signer"), sc.Web3Signer.Url, err.Error()))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), sc.Type,
			[]string{string(SignerTypePrivateKey), string(SignerTypeAWSKMS), string(SignerTypeWeb3Signer)}))
	}
	return allErrors
}

type PersistenceType string

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

type PersistenceConfig struct {
	Type PersistenceType `json:"type"`

	// DataDir is the badger directory
	DataDir string `json:"data_dir,omitempty"`

	RedisAddress  string `json:"redis_address,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	// RedisKeyPrefix lets several businesses share one redis
	RedisKeyPrefix string `json:"redis_key_prefix,omitempty"`
}

func (pc *PersistenceConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch pc.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if pc.DataDir == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataDir"), "badger persistence requires a data directory"))
		}
	case PersistenceTypeRedis:
		if pc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redis persistence requires an address"))
		}
		if pc.RedisDB < 0 || pc.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDb"), pc.RedisDB, "must be between 0 and 15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type,
			[]string{string(PersistenceTypeMemory), string(PersistenceTypeBadger), string(PersistenceTypeRedis)}))
	}
	return allErrors
}

// ChainConfig is the chain access shared by both peers. PeeringFile, when
// set, replaces on-chain owner and endpoint lookups with a local JSON file;
// job posts are always read from the chain.
type ChainConfig struct {
	ChainID     ChainId   `json:"chain_id"`
	ChainName   ChainName `json:"chain_name"`
	RpcUrl      string    `json:"rpc_url"`
	PeeringFile string    `json:"peering_file,omitempty"`
}

func (cc *ChainConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	chainName, exists := ChainIdToName[cc.ChainID]
	if !exists {
		allErrors = append(allErrors, field.Invalid(path.Child("chainId"), cc.ChainID,
			fmt.Sprintf("unsupported chain ID. Supported: %s", GetSupportedChainIDsString())))
	} else {
		cc.ChainName = chainName
	}
	if cc.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(path.Child("rpcUrl"), "rpc url is required"))
	}
	return allErrors
}

// BusinessConfig configures a Business master
type BusinessConfig struct {
	BusinessAddress string `json:"business_address"`
	Host            string `json:"host"`
	Port            int    `json:"port"`

	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	ChallengeWindow  time.Duration `json:"challenge_window"`
	AcceptRate       float64       `json:"accept_rate"`

	Chain       ChainConfig       `json:"chain"`
	Signer      SignerConfig      `json:"signer"`
	Persistence PersistenceConfig `json:"persistence"`

	Debug bool `json:"debug"`
}

func (c *BusinessConfig) Validate() error {
	var allErrors field.ErrorList
	root := field.NewPath("business")

	if !common.IsHexAddress(c.BusinessAddress) {
		allErrors = append(allErrors, field.Invalid(root.Child("businessAddress"), c.BusinessAddress, "must be a hex address"))
	}
	if c.Port < 0 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(root.Child("port"), c.Port, "must be between 0-65535"))
	}
	if c.HandshakeTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(root.Child("handshakeTimeout"), c.HandshakeTimeout.String(), "must not be negative"))
	}
	if c.AcceptRate < 0 {
		allErrors = append(allErrors, field.Invalid(root.Child("acceptRate"), c.AcceptRate, "must not be negative"))
	}
	allErrors = append(allErrors, c.Chain.Validate(root.Child("chain"))...)
	allErrors = append(allErrors, c.Signer.Validate(root.Child("signer"))...)
	allErrors = append(allErrors, c.Persistence.Validate(root.Child("persistence"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// NodeConfig configures a worker node
type NodeConfig struct {
	NodeAddress string `json:"node_address"`

	// JobRegistry emits JobPostAdded events
	JobRegistry string `json:"job_registry"`

	// MasterURL overrides the employer's published endpoint
	MasterURL string `json:"master_url,omitempty"`

	JobSearchTimeout time.Duration `json:"job_search_timeout"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	PollInterval     time.Duration `json:"poll_interval"`

	Chain       ChainConfig       `json:"chain"`
	Signer      SignerConfig      `json:"signer"`
	Persistence PersistenceConfig `json:"persistence"`

	Debug bool `json:"debug"`
}

func (c *NodeConfig) Validate() error {
	var allErrors field.ErrorList
	root := field.NewPath("node")

	if !common.IsHexAddress(c.NodeAddress) {
		allErrors = append(allErrors, field.Invalid(root.Child("nodeAddress"), c.NodeAddress, "must be a hex address"))
	}
	if !common.IsHexAddress(c.JobRegistry) {
		allErrors = append(allErrors, field.Invalid(root.Child("jobRegistry"), c.JobRegistry, "must be a hex address"))
	}
	if c.MasterURL != "" {
		u, err := url.Parse(c.MasterURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			allErrors = append(allErrors, field.Invalid(root.Child("masterUrl"), c.MasterURL, "must be a ws:// or wss:// url"))
		}
	}
	if c.JobSearchTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(root.Child("jobSearchTimeout"), c.JobSearchTimeout.String(), "must not be negative"))
	}
	if c.RequestTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(root.Child("requestTimeout"), c.RequestTimeout.String(), "must not be negative"))
	}
	allErrors = append(allErrors, c.Chain.Validate(root.Child("chain"))...)
	allErrors = append(allErrors, c.Signer.Validate(root.Child("signer"))...)
	allErrors = append(allErrors, c.Persistence.Validate(root.Child("persistence"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type RemoteSignerConfig struct {
	Url         string `json:"url" yaml:"url"`
	CACert      string `json:"caCert" yaml:"caCert"`
	Cert        string `json:"cert" yaml:"cert"`
	Key         string `json:"key" yaml:"key"`
	FromAddress string `json:"fromAddress" yaml:"fromAddress"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if rsc.Url == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("url"), "url is required"))
	}
	if rsc.FromAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("fromAddress"), "fromAddress is required"))
	} else if !common.IsHexAddress(rsc.FromAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("fromAddress"), rsc.FromAddress, "must be a hex address"))
	}
	if (rsc.Cert == "") != (rsc.Key == "") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("cert"), rsc.Cert, "cert and key must be set together"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
