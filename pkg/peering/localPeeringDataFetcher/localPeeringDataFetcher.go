package localPeeringDataFetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// LocalPeeringDataFetcher serves identity records from a static list, e.g.
// loaded from a JSON file for local development without a chain.
type LocalPeeringDataFetcher struct {
	records []*peering.IdentityRecord
	logger  *zap.Logger
}

func NewLocalPeeringDataFetcher(
	records []*peering.IdentityRecord,
	logger *zap.Logger,
) *LocalPeeringDataFetcher {
	return &LocalPeeringDataFetcher{
		records: records,
		logger:  logger,
	}
}

// NewLocalPeeringDataFetcherFromFile reads a JSON array of identity records
func NewLocalPeeringDataFetcherFromFile(path string, logger *zap.Logger) (*LocalPeeringDataFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	var records []*peering.IdentityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse identity file %s: %w", path, err)
	}
	logger.Sugar().Infow("Loaded local identity records", "path", path, "count", len(records))

	return NewLocalPeeringDataFetcher(records, logger), nil
}

func (lpdf *LocalPeeringDataFetcher) find(identity common.Address) *peering.IdentityRecord {
	for _, r := range lpdf.records {
		if r.Identity == identity {
			return r
		}
	}
	return nil
}

func (lpdf *LocalPeeringDataFetcher) ResolveOwner(ctx context.Context, identity common.Address) (common.Address, error) {
	r := lpdf.find(identity)
	if r == nil {
		return common.Address{}, fmt.Errorf("%w: %s", peering.ErrOwnerNotFound, identity.Hex())
	}
	return r.Owner, nil
}

func (lpdf *LocalPeeringDataFetcher) ResolveEndpoint(ctx context.Context, business common.Address) (string, error) {
	r := lpdf.find(business)
	if r == nil || r.Endpoint == "" {
		return "", fmt.Errorf("%w: %s", peering.ErrEndpointNotFound, business.Hex())
	}
	return r.Endpoint, nil
}
