package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	chainPoller "github.com/Layr-Labs/chain-indexer/pkg/chainPollers"
	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"go.uber.org/zap"
)

// MockChainPoller hands blocks to chain-indexer block handlers on demand
// instead of polling an RPC node.
type MockChainPoller struct {
	blockHandlers []chainPoller.IBlockHandler
	logger        *zap.Logger
	currentBlock  uint64
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
}

func NewMockChainPoller(blockHandlers []chainPoller.IBlockHandler, logger *zap.Logger) *MockChainPoller {
	return &MockChainPoller{
		blockHandlers: blockHandlers,
		logger:        logger,
	}
}

// Start arms the poller; blocks are only emitted by EmitBlock calls
func (m *MockChainPoller) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	return nil
}

func (m *MockChainPoller) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// EmitBlock emits the block after the current one
func (m *MockChainPoller) EmitBlock() error {
	m.mu.Lock()
	next := m.currentBlock + 1
	m.mu.Unlock()
	return m.EmitBlockAtNumber(next)
}

// EmitBlockAtNumber emits blockNumber to every handler. It is a no-op before
// Start or after Stop.
func (m *MockChainPoller) EmitBlockAtNumber(blockNumber uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil || m.ctx.Err() != nil {
		return nil
	}
	m.currentBlock = blockNumber

	block := &ethereum.EthereumBlock{
		Number:     ethereum.EthereumQuantity(blockNumber),
		Hash:       ethereum.EthereumHexString(blockHash(blockNumber)),
		ParentHash: ethereum.EthereumHexString(blockHash(blockNumber - 1)),
		Timestamp:  ethereum.EthereumQuantity(time.Now().Unix()),
	}
	for i, handler := range m.blockHandlers {
		if err := handler.HandleBlock(m.ctx, block); err != nil {
			return fmt.Errorf("handler %d rejected block %d: %w", i, blockNumber, err)
		}
	}
	return nil
}

func (m *MockChainPoller) CurrentBlock() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBlock
}

func blockHash(n uint64) string {
	return fmt.Sprintf("0x%064x", n)
}
