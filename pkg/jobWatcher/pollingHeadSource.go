package jobWatcher

import (
	"context"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/blockHandler"
	"go.uber.org/zap"
)

type IBlockNumberSource interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
}

// PollingHeadSource asks the node for the latest block every interval. It is
// the fallback when no chain poller feeds a blockHandler.BlockHandler.
type PollingHeadSource struct {
	chain    IBlockNumberSource
	interval time.Duration
	logger   *zap.Logger
	last     uint64
}

var _ blockHandler.IHeadSource = (*PollingHeadSource)(nil)

func NewPollingHeadSource(chain IBlockNumberSource, interval time.Duration, logger *zap.Logger) *PollingHeadSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingHeadSource{chain: chain, interval: interval, logger: logger}
}

func (p *PollingHeadSource) NextHead(ctx context.Context) (uint64, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}

		head, err := p.chain.GetLatestBlockNumber(ctx)
		if err != nil {
			p.logger.Sugar().Warnw("Failed to poll latest block", "error", err)
			continue
		}
		if head > p.last {
			p.last = head
			return head, nil
		}
	}
}
