package blockHandler

import (
	"context"
	"sync"

	chainPoller "github.com/Layr-Labs/chain-indexer/pkg/chainPollers"
	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"go.uber.org/zap"
)

// IHeadSource yields chain heads to the job watcher
type IHeadSource interface {
	// NextHead blocks until a head newer than the last one returned is
	// known, or ctx is done.
	NextHead(ctx context.Context) (uint64, error)
}

// BlockHandler receives blocks from a chain-indexer poller and keeps only the
// newest head. The job watcher scans logs by range, so intermediate heads
// that arrive while it is paused can be coalesced.
type BlockHandler struct {
	logger *zap.Logger

	mu       sync.Mutex
	latest   uint64
	returned uint64
	notify   chan struct{}
}

var _ chainPoller.IBlockHandler = (*BlockHandler)(nil)
var _ IHeadSource = (*BlockHandler)(nil)

func NewBlockHandler(logger *zap.Logger) *BlockHandler {
	return &BlockHandler{
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

func (h *BlockHandler) HandleBlock(ctx context.Context, block *ethereum.EthereumBlock) error {
	number := block.Number.Value()

	h.mu.Lock()
	if number <= h.latest {
		h.mu.Unlock()
		return nil
	}
	h.latest = number
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
	h.logger.Sugar().Debugw("BlockHandler received block", "block", number)
	return nil
}

// HandleLog is a no-op; job posts are read with explicit log filters
func (h *BlockHandler) HandleLog(ctx context.Context, logWithBlock *chainPoller.LogWithBlock) error {
	return nil
}

func (h *BlockHandler) HandleReorgBlock(ctx context.Context, blockNumber uint64) {
	h.logger.Sugar().Warnw("Reorg reported, job posts past this block may be reported again", "block", blockNumber)
	h.mu.Lock()
	defer h.mu.Unlock()
	if blockNumber < h.latest {
		h.latest = blockNumber
	}
	if blockNumber < h.returned {
		h.returned = blockNumber
	}
}

func (h *BlockHandler) NextHead(ctx context.Context) (uint64, error) {
	for {
		h.mu.Lock()
		if h.latest > h.returned {
			h.returned = h.latest
			head := h.latest
			h.mu.Unlock()
			return head, nil
		}
		h.mu.Unlock()

		select {
		case <-h.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
