package caller

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/contractCaller"
	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBackend answers eth_call by method selector and serves canned logs
type fakeBackend struct {
	abi     abi.ABI
	outputs map[common.Address]map[string]interface{}
	logs    []ethTypes.Log
	block   uint64

	lastQuery ethereum.FilterQuery
}

func newFakeBackend(t *testing.T) *fakeBackend {
	parsed, err := abi.JSON(strings.NewReader(IdentityABI))
	require.NoError(t, err)
	return &fakeBackend{
		abi:     parsed,
		outputs: make(map[common.Address]map[string]interface{}),
	}
}

func (f *fakeBackend) set(contract common.Address, method string, value interface{}) {
	if f.outputs[contract] == nil {
		f.outputs[contract] = make(map[string]interface{})
	}
	f.outputs[contract][method] = value
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	methods, ok := f.outputs[*call.To]
	if !ok {
		return nil, nil
	}
	m, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	value, ok := methods[m.Name]
	if !ok {
		return nil, nil
	}
	return m.Outputs.Pack(value)
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethTypes.Log, error) {
	f.lastQuery = q
	return f.logs, nil
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return f.block, nil
}

func Test_ContractCaller(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	identity := common.HexToAddress("0x1000000000000000000000000000000000000001")
	owner := common.HexToAddress("0x2000000000000000000000000000000000000002")
	jobPost := common.HexToAddress("0x3000000000000000000000000000000000000003")

	t.Run("GetOwner", func(t *testing.T) {
		backend := newFakeBackend(t)
		backend.set(identity, "owner", owner)
		cc, err := NewContractCaller(backend, logger)
		require.NoError(t, err)

		got, err := cc.GetOwner(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, owner, got)
	})

	t.Run("GetOwner without contract", func(t *testing.T) {
		cc, err := NewContractCaller(newFakeBackend(t), logger)
		require.NoError(t, err)

		_, err = cc.GetOwner(ctx, identity)
		assert.ErrorIs(t, err, peering.ErrOwnerNotFound)
	})

	t.Run("GetOwner zero owner", func(t *testing.T) {
		backend := newFakeBackend(t)
		backend.set(identity, "owner", common.Address{})
		cc, err := NewContractCaller(backend, logger)
		require.NoError(t, err)

		_, err = cc.GetOwner(ctx, identity)
		assert.ErrorIs(t, err, peering.ErrOwnerNotFound)
	})

	t.Run("GetBusinessInfo", func(t *testing.T) {
		backend := newFakeBackend(t)
		backend.set(identity, "info", `{"node_ip":"127.0.0.1","node_ws_port":7000}`)
		cc, err := NewContractCaller(backend, logger)
		require.NoError(t, err)

		info, err := cc.GetBusinessInfo(ctx, identity)
		require.NoError(t, err)
		endpoint, err := info.Endpoint()
		require.NoError(t, err)
		assert.Equal(t, "ws://127.0.0.1:7000", endpoint)
	})

	t.Run("GetJobPostEmployer", func(t *testing.T) {
		backend := newFakeBackend(t)
		backend.set(jobPost, "employer", identity)
		cc, err := NewContractCaller(backend, logger)
		require.NoError(t, err)

		employer, err := cc.GetJobPostEmployer(ctx, jobPost)
		require.NoError(t, err)
		assert.Equal(t, identity, employer)
	})

	t.Run("GetJobPostEmployer without contract", func(t *testing.T) {
		cc, err := NewContractCaller(newFakeBackend(t), logger)
		require.NoError(t, err)

		_, err = cc.GetJobPostEmployer(ctx, jobPost)
		assert.ErrorIs(t, err, contractCaller.ErrJobPostNotFound)
	})

	t.Run("FilterJobPostAdded", func(t *testing.T) {
		backend := newFakeBackend(t)
		registry := common.HexToAddress("0x4000000000000000000000000000000000000004")
		topic := backend.abi.Events["JobPostAdded"].ID
		backend.logs = []ethTypes.Log{
			{Address: registry, Topics: []common.Hash{topic, common.BytesToHash(jobPost.Bytes())}, BlockNumber: 12},
			{Address: registry, Topics: []common.Hash{topic, common.BytesToHash(identity.Bytes())}, BlockNumber: 13, Removed: true},
			{Address: registry, Topics: []common.Hash{topic}, BlockNumber: 14},
		}
		cc, err := NewContractCaller(backend, logger)
		require.NoError(t, err)

		posts, err := cc.FilterJobPostAdded(ctx, registry, 10, 20)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, jobPost, posts[0].Address)
		assert.Equal(t, uint64(12), posts[0].BlockNumber)

		assert.Equal(t, uint64(10), backend.lastQuery.FromBlock.Uint64())
		assert.Equal(t, uint64(20), backend.lastQuery.ToBlock.Uint64())
		assert.Equal(t, []common.Address{registry}, backend.lastQuery.Addresses)
	})
}
