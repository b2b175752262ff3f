package peering

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// StubPeeringDataFetcher is a simple stub implementation for testing
type StubPeeringDataFetcher struct {
	mu      sync.RWMutex
	records map[common.Address]*IdentityRecord
	calls   int
}

// NewStubPeeringDataFetcher creates a new stub peering data fetcher
func NewStubPeeringDataFetcher(records ...*IdentityRecord) *StubPeeringDataFetcher {
	s := &StubPeeringDataFetcher{
		records: make(map[common.Address]*IdentityRecord),
	}
	for _, r := range records {
		s.Set(r)
	}
	return s
}

// Set adds or replaces a record
func (s *StubPeeringDataFetcher) Set(record *IdentityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.Identity] = &cp
}

// Remove forgets an identity
func (s *StubPeeringDataFetcher) Remove(identity common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identity)
}

// Calls returns how many lookups were served
func (s *StubPeeringDataFetcher) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *StubPeeringDataFetcher) ResolveOwner(ctx context.Context, identity common.Address) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	r, ok := s.records[identity]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrOwnerNotFound, identity.Hex())
	}
	return r.Owner, nil
}

func (s *StubPeeringDataFetcher) ResolveEndpoint(ctx context.Context, business common.Address) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[business]
	if !ok || r.Endpoint == "" {
		return "", fmt.Errorf("%w: %s", ErrEndpointNotFound, business.Hex())
	}
	return r.Endpoint, nil
}
