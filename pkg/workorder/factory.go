package workorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/Layr-Labs/workorder-peering-go/pkg/contractCaller"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrNotEligible is returned when no work order is available for a job post
var ErrNotEligible = types.ErrNotEligible

// IWorkOrderFactory finds or creates the work order a business offers a node
// owner for one of its job posts.
type IWorkOrderFactory interface {
	// FindOrCreateWorkOrder returns an error wrapping ErrNotEligible when the
	// owner cannot be offered work for jobPost.
	FindOrCreateWorkOrder(ctx context.Context, jobPost, owner common.Address) (common.Address, error)
}

// IEmployerResolver is the chain read the factory needs
type IEmployerResolver interface {
	GetJobPostEmployer(ctx context.Context, jobPost common.Address) (common.Address, error)
}

// DerivedWorkOrderFactory offers work orders only for job posts employed by
// its business. Work order addresses are derived deterministically from
// (business, jobPost, owner) so every Master instance of a business agrees on
// them without coordination.
type DerivedWorkOrderFactory struct {
	business  common.Address
	employers IEmployerResolver
	logger    *zap.Logger
}

var _ IWorkOrderFactory = (*DerivedWorkOrderFactory)(nil)

func NewDerivedWorkOrderFactory(business common.Address, employers IEmployerResolver, logger *zap.Logger) *DerivedWorkOrderFactory {
	return &DerivedWorkOrderFactory{
		business:  business,
		employers: employers,
		logger:    logger,
	}
}

func (f *DerivedWorkOrderFactory) FindOrCreateWorkOrder(ctx context.Context, jobPost, owner common.Address) (common.Address, error) {
	employer, err := f.employers.GetJobPostEmployer(ctx, jobPost)
	if errors.Is(err, contractCaller.ErrJobPostNotFound) {
		return common.Address{}, fmt.Errorf("%w: job post %s does not exist", ErrNotEligible, jobPost.Hex())
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to resolve employer of job post %s: %w", jobPost.Hex(), err)
	}
	if employer != f.business {
		return common.Address{}, fmt.Errorf("%w: job post %s is not employed by %s", ErrNotEligible, jobPost.Hex(), f.business.Hex())
	}

	workOrder := DeriveWorkOrderAddress(f.business, jobPost, owner)
	f.logger.Sugar().Debugw("Derived work order",
		"jobPost", jobPost.Hex(),
		"owner", owner.Hex(),
		"workOrder", workOrder.Hex(),
	)
	return workOrder, nil
}

// DeriveWorkOrderAddress returns keccak256(business || jobPost || owner)[12:]
func DeriveWorkOrderAddress(business, jobPost, owner common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(business.Bytes(), jobPost.Bytes(), owner.Bytes())[12:])
}
