package jobWatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/blockHandler"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var ErrAlreadyWatching = errors.New("already watching for job posts")

const (
	DefaultLookbackBlocks = 1000
	DefaultPollInterval   = 1 * time.Second
	DefaultMaxBlockRange  = 5000
)

// IJobPostSource is the chain read surface the watcher needs
type IJobPostSource interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	FilterJobPostAdded(ctx context.Context, registry common.Address, fromBlock, toBlock uint64) ([]*types.JobPost, error)
}

type Config struct {
	// Registry emits JobPostAdded
	Registry common.Address
	// LookbackBlocks is how far behind the head a first run starts scanning
	LookbackBlocks uint64
	// MaxBlockRange bounds a single log filter query
	MaxBlockRange uint64
}

// Watcher discovers job posts. Polling only happens inside FindNextJob; the
// watcher is paused between calls and resumes from the last scanned block.
type Watcher struct {
	cfg    Config
	chain  IJobPostSource
	heads  blockHandler.IHeadSource
	store  persistence.IPeeringPersistence
	logger *zap.Logger

	mu       sync.Mutex
	watching bool

	// guarded by watching
	initialized bool
	nextBlock   uint64
	queue       []*types.JobPost
}

// NewWatcher builds a watcher. store may be nil, in which case the scan
// position is not kept across restarts.
func NewWatcher(
	cfg Config,
	chain IJobPostSource,
	heads blockHandler.IHeadSource,
	store persistence.IPeeringPersistence,
	logger *zap.Logger,
) *Watcher {
	if cfg.LookbackBlocks == 0 {
		cfg.LookbackBlocks = DefaultLookbackBlocks
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = DefaultMaxBlockRange
	}
	return &Watcher{
		cfg:    cfg,
		chain:  chain,
		heads:  heads,
		store:  store,
		logger: logger.With(zap.String("registry", cfg.Registry.Hex())),
	}
}

// FindNextJob blocks until a job post is found or ctx is done. Concurrent
// calls fail with ErrAlreadyWatching. A ctx deadline is reported as
// types.ErrTimeout.
func (w *Watcher) FindNextJob(ctx context.Context) (*types.JobPost, error) {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil, ErrAlreadyWatching
	}
	w.watching = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	}()

	if job := w.pop(); job != nil {
		w.checkpoint()
		return job, nil
	}

	if !w.initialized {
		if err := w.initialize(ctx); err != nil {
			return nil, err
		}
	}

	head, err := w.chain.GetLatestBlockNumber(ctx)
	if err != nil {
		return nil, w.wrapCtxErr(ctx, fmt.Errorf("failed to get latest block: %w", err))
	}
	w.logger.Sugar().Debugw("Resuming job post watch", "fromBlock", w.nextBlock, "head", head)

	for {
		if err := w.scanTo(ctx, head); err != nil {
			return nil, err
		}
		job := w.pop()
		w.checkpoint()
		if job != nil {
			w.logger.Sugar().Infow("Found job post", "jobPost", job.Address.Hex(), "block", job.BlockNumber)
			return job, nil
		}

		head, err = w.heads.NextHead(ctx)
		if err != nil {
			return nil, w.wrapCtxErr(ctx, err)
		}
	}
}

func (w *Watcher) initialize(ctx context.Context) error {
	if w.store != nil {
		state, err := w.store.LoadWatcherState(w.cfg.Registry)
		if err != nil {
			return fmt.Errorf("failed to load watcher state: %w", err)
		}
		if state != nil {
			w.nextBlock = state.LastProcessedBlock + 1
			w.initialized = true
			w.logger.Sugar().Infow("Restored job watcher position", "nextBlock", w.nextBlock)
			return nil
		}
	}

	latest, err := w.chain.GetLatestBlockNumber(ctx)
	if err != nil {
		return w.wrapCtxErr(ctx, fmt.Errorf("failed to get latest block: %w", err))
	}
	if latest > w.cfg.LookbackBlocks {
		w.nextBlock = latest - w.cfg.LookbackBlocks
	}
	w.initialized = true
	w.logger.Sugar().Infow("Starting job watcher", "fromBlock", w.nextBlock, "head", latest)
	return nil
}

func (w *Watcher) scanTo(ctx context.Context, head uint64) error {
	for w.nextBlock <= head {
		to := head
		if to-w.nextBlock+1 > w.cfg.MaxBlockRange {
			to = w.nextBlock + w.cfg.MaxBlockRange - 1
		}

		posts, err := w.chain.FilterJobPostAdded(ctx, w.cfg.Registry, w.nextBlock, to)
		if err != nil {
			return w.wrapCtxErr(ctx, fmt.Errorf("failed to filter job posts in [%d, %d]: %w", w.nextBlock, to, err))
		}
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].BlockNumber < posts[j].BlockNumber
		})
		w.queue = append(w.queue, posts...)
		w.nextBlock = to + 1
	}
	return nil
}

// checkpoint persists the block before the earliest job post not yet handed
// out, or the last scanned block when nothing is queued. Posts sharing a
// block with a queued one are returned again after a restart.
func (w *Watcher) checkpoint() {
	if w.store == nil || w.nextBlock == 0 {
		return
	}
	last := w.nextBlock - 1
	if len(w.queue) > 0 {
		pending := w.queue[0].BlockNumber
		if pending == 0 {
			return
		}
		last = pending - 1
	}
	if err := w.store.SaveWatcherState(&persistence.WatcherState{
		Registry:           w.cfg.Registry,
		LastProcessedBlock: last,
		UpdatedAt:          time.Now().Unix(),
	}); err != nil {
		w.logger.Sugar().Warnw("Failed to save watcher state", "error", err)
	}
}

func (w *Watcher) pop() *types.JobPost {
	if len(w.queue) == 0 {
		return nil
	}
	job := w.queue[0]
	w.queue = w.queue[1:]
	return job
}

func (w *Watcher) wrapCtxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: no job post found: %v", types.ErrTimeout, ctx.Err())
	}
	return err
}
