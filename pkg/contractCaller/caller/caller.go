package caller

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	chainIndexerEthereum "github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/workorder-peering-go/pkg/contractCaller"
	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// IdentityABI covers the read-only surface of the Node, Business, JobPost and
// registry contracts used by the peers.
const IdentityABI = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"info","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"employer","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"JobPostAdded","anonymous":false,"inputs":[{"name":"jobPost","type":"address","indexed":true}]}
]`

// ContractBackend is the subset of *ethclient.Client the caller needs
type ContractBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethTypes.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ ContractBackend = (*ethclient.Client)(nil)

type ContractCaller struct {
	backend ContractBackend
	abi     abi.ABI
	logger  *zap.Logger
}

var _ contractCaller.IContractCaller = (*ContractCaller)(nil)

// NewContractCallerFromEthereumClient shares the chain-indexer client the
// block poller uses.
func NewContractCallerFromEthereumClient(
	ethClient *chainIndexerEthereum.EthereumClient,
	logger *zap.Logger,
) (*ContractCaller, error) {
	client, err := ethClient.GetEthereumContractCaller()
	if err != nil {
		return nil, err
	}

	return NewContractCaller(client, logger)
}

func NewContractCallerFromRpcUrl(ctx context.Context, rpcUrl string, logger *zap.Logger) (*ContractCaller, error) {
	client, err := ethclient.DialContext(ctx, rpcUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial rpc %s", rpcUrl)
	}
	chainId, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chain ID")
	}
	logger.Sugar().Infow("Connected to chain", "rpcUrl", rpcUrl, "chainId", chainId.Uint64())

	return NewContractCaller(client, logger)
}

func NewContractCaller(
	backend ContractBackend,
	logger *zap.Logger,
) (*ContractCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(IdentityABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity abi: %w", err)
	}

	return &ContractCaller{
		backend: backend,
		abi:     parsed,
		logger:  logger,
	}, nil
}

func (cc *ContractCaller) call(ctx context.Context, contract common.Address, method string) ([]interface{}, error) {
	input, err := cc.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := cc.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s on %s failed", method, contract.Hex())
	}
	if len(output) == 0 {
		return nil, errNoContract
	}

	values, err := cc.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s output length %d", method, len(values))
	}
	return values, nil
}

var errNoContract = fmt.Errorf("no contract code at address")

func (cc *ContractCaller) callAddress(ctx context.Context, contract common.Address, method string) (common.Address, error) {
	values, err := cc.call(ctx, contract, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s output type %T", method, values[0])
	}
	return addr, nil
}

func (cc *ContractCaller) GetOwner(ctx context.Context, identity common.Address) (common.Address, error) {
	owner, err := cc.callAddress(ctx, identity, "owner")
	if errors.Is(err, errNoContract) {
		return common.Address{}, fmt.Errorf("%w: no identity contract at %s", peering.ErrOwnerNotFound, identity.Hex())
	}
	if err != nil {
		return common.Address{}, err
	}
	if owner == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: identity %s has no owner", peering.ErrOwnerNotFound, identity.Hex())
	}
	return owner, nil
}

func (cc *ContractCaller) GetBusinessInfo(ctx context.Context, business common.Address) (*contractCaller.BusinessInfo, error) {
	values, err := cc.call(ctx, business, "info")
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected info output type %T", values[0])
	}
	return contractCaller.ParseBusinessInfo(raw)
}

func (cc *ContractCaller) GetJobPostEmployer(ctx context.Context, jobPost common.Address) (common.Address, error) {
	employer, err := cc.callAddress(ctx, jobPost, "employer")
	if errors.Is(err, errNoContract) || (err == nil && employer == (common.Address{})) {
		return common.Address{}, fmt.Errorf("%w: %s", contractCaller.ErrJobPostNotFound, jobPost.Hex())
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get employer of job post %s: %w", jobPost.Hex(), err)
	}
	return employer, nil
}

func (cc *ContractCaller) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := cc.backend.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get block number")
	}
	return n, nil
}

func (cc *ContractCaller) FilterJobPostAdded(
	ctx context.Context,
	registry common.Address,
	fromBlock, toBlock uint64,
) ([]*types.JobPost, error) {
	event := cc.abi.Events["JobPostAdded"]
	logs, err := cc.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{registry},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to filter JobPostAdded logs [%d, %d]", fromBlock, toBlock)
	}

	posts := make([]*types.JobPost, 0, len(logs))
	for _, l := range logs {
		if l.Removed || len(l.Topics) < 2 {
			continue
		}
		posts = append(posts, &types.JobPost{
			Address:     common.BytesToAddress(l.Topics[1].Bytes()),
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
		})
	}
	cc.logger.Sugar().Debugw("Filtered job posts",
		"registry", registry.Hex(),
		"fromBlock", fromBlock,
		"toBlock", toBlock,
		"count", len(posts),
	)
	return posts, nil
}
