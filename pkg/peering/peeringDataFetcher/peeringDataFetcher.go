package peeringDataFetcher

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/workorder-peering-go/pkg/contractCaller"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
)

// PeeringDataFetcher resolves identities by reading the identity contracts on chain
type PeeringDataFetcher struct {
	contractCaller contractCaller.IContractCaller
	logger         *zap.Logger
}

func NewPeeringDataFetcher(
	contractCaller contractCaller.IContractCaller,
	logger *zap.Logger,
) *PeeringDataFetcher {
	return &PeeringDataFetcher{
		contractCaller: contractCaller,
		logger:         logger,
	}
}

func (pdf *PeeringDataFetcher) ResolveOwner(ctx context.Context, identity common.Address) (common.Address, error) {
	return pdf.contractCaller.GetOwner(ctx, identity)
}

func (pdf *PeeringDataFetcher) ResolveEndpoint(ctx context.Context, business common.Address) (string, error) {
	info, err := pdf.contractCaller.GetBusinessInfo(ctx, business)
	if err != nil {
		return "", err
	}
	endpoint, err := info.Endpoint()
	if err != nil {
		return "", fmt.Errorf("business %s: %w", business.Hex(), err)
	}
	pdf.logger.Sugar().Debugw("Resolved business endpoint", "business", business.Hex(), "endpoint", endpoint)
	return endpoint, nil
}
