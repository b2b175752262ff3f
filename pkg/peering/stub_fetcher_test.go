package peering

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StubPeeringDataFetcher(t *testing.T) {
	ctx := context.Background()
	identity := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	s := NewStubPeeringDataFetcher(&IdentityRecord{Identity: identity, Owner: owner})

	got, err := s.ResolveOwner(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	_, err = s.ResolveOwner(ctx, owner)
	assert.ErrorIs(t, err, ErrOwnerNotFound)

	_, err = s.ResolveEndpoint(ctx, identity)
	assert.ErrorIs(t, err, ErrEndpointNotFound)

	s.Set(&IdentityRecord{Identity: identity, Owner: owner, Endpoint: "ws://127.0.0.1:9000"})
	endpoint, err := s.ResolveEndpoint(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9000", endpoint)

	s.Remove(identity)
	_, err = s.ResolveOwner(ctx, identity)
	assert.ErrorIs(t, err, ErrOwnerNotFound)
	assert.Equal(t, 3, s.Calls())
}

func Test_VerifyRegistration(t *testing.T) {
	ctx := context.Background()
	identity := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	other := common.HexToAddress("0x00000000000000000000000000000000000000c3")

	s := NewStubPeeringDataFetcher(&IdentityRecord{Identity: identity, Owner: owner})

	require.NoError(t, VerifyRegistration(ctx, s, identity, owner))
	assert.ErrorIs(t, VerifyRegistration(ctx, s, identity, other), ErrIdentityNotOwned)
	assert.ErrorIs(t, VerifyRegistration(ctx, s, other, owner), ErrOwnerNotFound)
}
