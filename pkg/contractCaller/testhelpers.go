package contractCaller

import (
	"context"
	"fmt"
	"sync"

	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// TestableContractCallerStub is an in-memory IContractCaller for tests
type TestableContractCallerStub struct {
	mu          sync.RWMutex
	owners      map[common.Address]common.Address
	businesses  map[common.Address]*BusinessInfo
	employers   map[common.Address]common.Address
	jobPosts    []*types.JobPost
	latestBlock uint64
}

var _ IContractCaller = (*TestableContractCallerStub)(nil)

func NewTestableContractCallerStub() *TestableContractCallerStub {
	return &TestableContractCallerStub{
		owners:     make(map[common.Address]common.Address),
		businesses: make(map[common.Address]*BusinessInfo),
		employers:  make(map[common.Address]common.Address),
	}
}

func (m *TestableContractCallerStub) SetOwner(identity, owner common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[identity] = owner
}

func (m *TestableContractCallerStub) SetBusinessInfo(business common.Address, info *BusinessInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[business] = info
}

// AddJobPost registers a job post mined at blockNumber; the latest block
// advances to at least blockNumber.
func (m *TestableContractCallerStub) AddJobPost(jobPost, employer common.Address, blockNumber uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employers[jobPost] = employer
	m.jobPosts = append(m.jobPosts, &types.JobPost{Address: jobPost, BlockNumber: blockNumber})
	if blockNumber > m.latestBlock {
		m.latestBlock = blockNumber
	}
}

func (m *TestableContractCallerStub) SetLatestBlock(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latestBlock = n
}

func (m *TestableContractCallerStub) GetOwner(ctx context.Context, identity common.Address) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[identity]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", peering.ErrOwnerNotFound, identity.Hex())
	}
	return owner, nil
}

func (m *TestableContractCallerStub) GetBusinessInfo(ctx context.Context, business common.Address) (*BusinessInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.businesses[business]
	if !ok {
		return nil, fmt.Errorf("no business info for %s", business.Hex())
	}
	return info, nil
}

func (m *TestableContractCallerStub) GetJobPostEmployer(ctx context.Context, jobPost common.Address) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	employer, ok := m.employers[jobPost]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrJobPostNotFound, jobPost.Hex())
	}
	return employer, nil
}

func (m *TestableContractCallerStub) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestBlock, nil
}

func (m *TestableContractCallerStub) FilterJobPostAdded(ctx context.Context, registry common.Address, fromBlock, toBlock uint64) ([]*types.JobPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	posts := make([]*types.JobPost, 0)
	for _, p := range m.jobPosts {
		if p.BlockNumber >= fromBlock && p.BlockNumber <= toBlock {
			cp := *p
			posts = append(posts, &cp)
		}
	}
	return posts, nil
}
