package workorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// IOfferBook is the Master side view of offered work orders, shared by every
// session of a Master.
type IOfferBook interface {
	FindOrCreate(ctx context.Context, jobPost, owner common.Address) (*types.WorkOrderOffer, error)

	// IsOffered reports whether workOrder was offered to owner
	IsOffered(ctx context.Context, workOrder, owner common.Address) (bool, error)
}

type jobPostLock struct {
	mu   sync.Mutex
	refs int
}

// Registry caches offers in persistence keyed by (jobPost, owner). Concurrent
// requests for the same pair share one factory call, and creation for a
// given job post runs at most once at a time.
type Registry struct {
	factory IWorkOrderFactory
	store   persistence.IPeeringPersistence
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group

	locksMu sync.Mutex
	locks   map[common.Address]*jobPostLock

	indexMu sync.RWMutex
	offered map[common.Address]map[common.Address]struct{} // workOrder -> owners
}

var _ IOfferBook = (*Registry)(nil)

// NewRegistry loads previously persisted offers into the work order index
func NewRegistry(factory IWorkOrderFactory, store persistence.IPeeringPersistence, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		factory: factory,
		store:   store,
		logger:  logger,
		now:     time.Now,
		locks:   make(map[common.Address]*jobPostLock),
		offered: make(map[common.Address]map[common.Address]struct{}),
	}

	offers, err := store.ListOffers()
	if err != nil {
		return nil, fmt.Errorf("failed to load offers: %w", err)
	}
	for _, offer := range offers {
		r.index(offer)
	}
	if len(offers) > 0 {
		logger.Sugar().Infow("Loaded persisted work order offers", "count", len(offers))
	}
	return r, nil
}

func (r *Registry) FindOrCreate(ctx context.Context, jobPost, owner common.Address) (*types.WorkOrderOffer, error) {
	if offer, err := r.store.LoadOffer(jobPost, owner); err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	} else if offer != nil {
		r.index(offer)
		return offer, nil
	}

	v, err, shared := r.group.Do(persistence.OfferKey(jobPost, owner), func() (interface{}, error) {
		return r.create(ctx, jobPost, owner)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Sugar().Debugw("Shared in-flight offer creation", "jobPost", jobPost.Hex(), "owner", owner.Hex())
	}
	offer := *v.(*types.WorkOrderOffer)
	return &offer, nil
}

func (r *Registry) create(ctx context.Context, jobPost, owner common.Address) (*types.WorkOrderOffer, error) {
	unlock := r.lockJobPost(jobPost)
	defer unlock()

	// another owner's creation for this job post may have finished while we waited
	if offer, err := r.store.LoadOffer(jobPost, owner); err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	} else if offer != nil {
		return offer, nil
	}

	workOrder, err := r.factory.FindOrCreateWorkOrder(ctx, jobPost, owner)
	if err != nil {
		return nil, err
	}

	offer := &types.WorkOrderOffer{
		JobPost:   jobPost,
		WorkOrder: workOrder,
		Owner:     owner,
		CreatedAt: r.now().Unix(),
	}
	if err := r.store.SaveOffer(offer); err != nil {
		return nil, fmt.Errorf("failed to save offer: %w", err)
	}
	r.index(offer)

	r.logger.Sugar().Infow("Created work order offer",
		"jobPost", jobPost.Hex(),
		"owner", owner.Hex(),
		"workOrder", workOrder.Hex(),
	)
	return offer, nil
}

// IsOffered consults the in-memory index first and falls back to the store,
// which may hold offers created by another Master sharing it.
func (r *Registry) IsOffered(ctx context.Context, workOrder, owner common.Address) (bool, error) {
	if r.indexed(workOrder, owner) {
		return true, nil
	}

	offers, err := r.store.ListOffers()
	if err != nil {
		return false, fmt.Errorf("failed to list offers: %w", err)
	}
	for _, offer := range offers {
		r.index(offer)
	}
	return r.indexed(workOrder, owner), nil
}

func (r *Registry) indexed(workOrder, owner common.Address) bool {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	_, ok := r.offered[workOrder][owner]
	return ok
}

func (r *Registry) index(offer *types.WorkOrderOffer) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	owners, ok := r.offered[offer.WorkOrder]
	if !ok {
		owners = make(map[common.Address]struct{})
		r.offered[offer.WorkOrder] = owners
	}
	owners[offer.Owner] = struct{}{}
}

func (r *Registry) lockJobPost(jobPost common.Address) func() {
	r.locksMu.Lock()
	l, ok := r.locks[jobPost]
	if !ok {
		l = &jobPostLock{}
		r.locks[jobPost] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, jobPost)
		}
		r.locksMu.Unlock()
	}
}
