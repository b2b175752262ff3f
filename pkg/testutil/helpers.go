package testutil

import (
	"crypto/rand"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner/inMemoryTransportSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestPeer is a throwaway wallet plus the on-chain identity it owns
type TestPeer struct {
	Signer   *inMemoryTransportSigner.InMemoryTransportSigner
	Owner    common.Address
	Identity common.Address
}

// Record returns the peering record binding the identity to its owner
func (tp *TestPeer) Record(endpoint string) *peering.IdentityRecord {
	return &peering.IdentityRecord{
		Identity: tp.Identity,
		Owner:    tp.Owner,
		Endpoint: endpoint,
	}
}

// NewTestPeer creates a fresh wallet and a random identity address for it
func NewTestPeer(t *testing.T) *TestPeer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer := inMemoryTransportSigner.NewInMemoryTransportSigner(key, zap.NewNop())
	return &TestPeer{
		Signer:   signer,
		Owner:    signer.Address(),
		Identity: RandomAddress(t),
	}
}

func RandomAddress(t *testing.T) common.Address {
	t.Helper()
	var addr common.Address
	_, err := rand.Read(addr[:])
	require.NoError(t, err)
	return addr
}

// NewResolver returns a stub resolver that knows every given peer
func NewResolver(peers ...*TestPeer) *peering.StubPeeringDataFetcher {
	resolver := peering.NewStubPeeringDataFetcher()
	for _, p := range peers {
		resolver.Set(p.Record(""))
	}
	return resolver
}
