package peering

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrOwnerNotFound    = errors.New("owner not found")
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrIdentityNotOwned is returned when a configured identity is owned by
	// a wallet other than the local signer's.
	ErrIdentityNotOwned = errors.New("identity is not owned by this wallet")
)

// IdentityRecord describes one wallet-controlled on-chain identity (a Node or
// a Business) and, for businesses, the endpoint its Master listens on.
type IdentityRecord struct {
	Identity common.Address `json:"identity"`
	Owner    common.Address `json:"owner"`
	Endpoint string         `json:"endpoint,omitempty"`
}

// IOwnerResolver resolves an identity address to the wallet that owns it.
// Implementations return ErrOwnerNotFound when the identity is unknown.
type IOwnerResolver interface {
	ResolveOwner(ctx context.Context, identity common.Address) (common.Address, error)
}

// IEndpointResolver resolves a business identity to its Master websocket url.
type IEndpointResolver interface {
	ResolveEndpoint(ctx context.Context, business common.Address) (string, error)
}

type IPeeringDataFetcher interface {
	IOwnerResolver
	IEndpointResolver
}

// VerifyRegistration checks that identity is registered and owned by wallet.
// Peers run it at startup so a misconfigured key fails before any dial.
func VerifyRegistration(ctx context.Context, resolver IOwnerResolver, identity, wallet common.Address) error {
	owner, err := resolver.ResolveOwner(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to resolve owner of %s: %w", identity.Hex(), err)
	}
	if owner != wallet {
		return fmt.Errorf("%w: %s belongs to some other wallet (%s), not %s", ErrIdentityNotOwned, identity.Hex(), owner.Hex(), wallet.Hex())
	}
	return nil
}
