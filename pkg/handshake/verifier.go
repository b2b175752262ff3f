package handshake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type VerifierConfig struct {
	// ChallengeWindow bounds the age (and future skew) of an accepted challenge
	ChallengeWindow time.Duration
	// Now is overridable for tests
	Now func() time.Time
}

// Verifier checks that a signed challenge was produced by the owner of the
// claimed identity. It remembers every challenge it has seen within the
// window so a captured handshake cannot be replayed.
type Verifier struct {
	resolver peering.IOwnerResolver
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewVerifier(resolver peering.IOwnerResolver, cfg *VerifierConfig, logger *zap.Logger) *Verifier {
	v := &Verifier{
		resolver: resolver,
		window:   DefaultChallengeWindow,
		now:      time.Now,
		logger:   logger,
		seen:     make(map[string]time.Time),
	}
	if cfg != nil {
		if cfg.ChallengeWindow > 0 {
			v.window = cfg.ChallengeWindow
		}
		if cfg.Now != nil {
			v.now = cfg.Now
		}
	}
	return v
}

// Verify returns the resolved owner of identity when signature over
// challenge recovers to exactly that owner. Verification failures are
// *types.RefusedError; resolver outages are returned as-is.
func (v *Verifier) Verify(ctx context.Context, identity common.Address, challenge string, signature []byte) (common.Address, error) {
	issuedAt, _, err := ParseChallenge(challenge)
	if err != nil {
		return common.Address{}, err
	}

	now := v.now()
	if age := now.Sub(issuedAt); age > v.window || age < -v.window {
		return common.Address{}, types.NewRefusedError("challenge outside of the %s window", v.window)
	}

	signer, err := transportSigner.RecoverSigner([]byte(challenge), signature)
	if err != nil {
		return common.Address{}, types.NewRefusedError("invalid signature: %v", err)
	}

	if !v.markSeen(challenge, now) {
		return common.Address{}, types.NewRefusedError("challenge has already been used")
	}

	owner, err := v.resolver.ResolveOwner(ctx, identity)
	if errors.Is(err, peering.ErrOwnerNotFound) {
		return common.Address{}, types.NewRefusedError("identity %s is not registered", identity.Hex())
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to resolve owner of %s: %w", identity.Hex(), err)
	}

	if owner != signer {
		v.logger.Sugar().Warnw("Signer does not own identity",
			"identity", identity.Hex(),
			"owner", owner.Hex(),
			"signer", signer.Hex(),
		)
		return common.Address{}, types.NewRefusedError("identity %s belongs to some other wallet", identity.Hex())
	}
	return owner, nil
}

func (v *Verifier) markSeen(challenge string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for c, at := range v.seen {
		if now.Sub(at) > 2*v.window {
			delete(v.seen, c)
		}
	}
	if _, ok := v.seen[challenge]; ok {
		return false
	}
	v.seen[challenge] = now
	return true
}
