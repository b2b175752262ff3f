package testutil

import (
	"context"
	"testing"
	"time"

	chainPoller "github.com/Layr-Labs/chain-indexer/pkg/chainPollers"
	"github.com/Layr-Labs/workorder-peering-go/pkg/blockHandler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMockChainPoller(t *testing.T) {
	bh := blockHandler.NewBlockHandler(zap.NewNop())
	poller := NewMockChainPoller([]chainPoller.IBlockHandler{bh}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// nothing is emitted before Start
	require.NoError(t, poller.EmitBlockAtNumber(3))
	assert.Equal(t, uint64(0), poller.CurrentBlock())

	require.NoError(t, poller.Start(ctx))
	require.NoError(t, poller.EmitBlockAtNumber(5))
	head, err := bh.NextHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), head)

	require.NoError(t, poller.EmitBlock())
	head, err = bh.NextHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), head)

	poller.Stop()
	require.NoError(t, poller.EmitBlock())
	assert.Equal(t, uint64(6), poller.CurrentBlock())
}
