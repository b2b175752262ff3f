package workorder

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/contractCaller"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence/memory"
	"github.com/Layr-Labs/workorder-peering-go/pkg/testutil"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingFactory struct {
	inner IWorkOrderFactory
	delay time.Duration
	calls atomic.Int32
}

func (c *countingFactory) FindOrCreateWorkOrder(ctx context.Context, jobPost, owner common.Address) (common.Address, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.inner.FindOrCreateWorkOrder(ctx, jobPost, owner)
}

type countingOfferBook struct {
	IOfferBook
	isOfferedCalls atomic.Int32
}

func (c *countingOfferBook) IsOffered(ctx context.Context, workOrder, owner common.Address) (bool, error) {
	c.isOfferedCalls.Add(1)
	return c.IOfferBook.IsOffered(ctx, workOrder, owner)
}

func Test_AcceptanceDigest(t *testing.T) {
	workOrder := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	t.Run("Packed layout", func(t *testing.T) {
		packed, err := PackAcceptance(workOrder, true, big.NewInt(258))
		require.NoError(t, err)
		require.Len(t, packed, packedAcceptanceLength)
		assert.Equal(t, workOrder.Bytes(), packed[:20])
		assert.Equal(t, byte(1), packed[20])
		assert.Equal(t, byte(1), packed[51])
		assert.Equal(t, byte(2), packed[52])

		packed, err = PackAcceptance(workOrder, false, big.NewInt(0))
		require.NoError(t, err)
		assert.Equal(t, byte(0), packed[20])
	})

	t.Run("Rejects invalid nonces", func(t *testing.T) {
		_, err := PackAcceptance(workOrder, true, nil)
		assert.ErrorIs(t, err, types.ErrProtocolFormat)
		_, err = PackAcceptance(workOrder, true, big.NewInt(-1))
		assert.ErrorIs(t, err, types.ErrProtocolFormat)
		_, err = PackAcceptance(workOrder, true, new(big.Int).Lsh(big.NewInt(1), 256))
		assert.ErrorIs(t, err, types.ErrProtocolFormat)
	})

	t.Run("Sign and recover", func(t *testing.T) {
		peer := testutil.NewTestPeer(t)
		sig, err := SignAcceptance(peer.Signer, workOrder, true, big.NewInt(1))
		require.NoError(t, err)

		signer, err := RecoverAcceptanceSigner(workOrder, true, big.NewInt(1), sig)
		require.NoError(t, err)
		assert.Equal(t, peer.Owner, signer)

		signer, err = RecoverAcceptanceSigner(workOrder, true, big.NewInt(2), sig)
		require.NoError(t, err)
		assert.NotEqual(t, peer.Owner, signer)
	})

	t.Run("ParseNonce", func(t *testing.T) {
		n, err := ParseNonce("42")
		require.NoError(t, err)
		assert.Equal(t, int64(42), n.Int64())

		n, err = ParseNonce("0x2a")
		require.NoError(t, err)
		assert.Equal(t, int64(42), n.Int64())

		for _, s := range []string{"", "-1", "-5", "abc", "0xzz"} {
			_, err := ParseNonce(s)
			assert.ErrorIs(t, err, types.ErrProtocolFormat, s)
		}
	})
}

func Test_DerivedWorkOrderFactory(t *testing.T) {
	ctx := context.Background()
	business := testutil.RandomAddress(t)
	other := testutil.RandomAddress(t)
	owner := testutil.RandomAddress(t)

	chain := contractCaller.NewTestableContractCallerStub()
	ownJobPost := testutil.RandomAddress(t)
	foreignJobPost := testutil.RandomAddress(t)
	chain.AddJobPost(ownJobPost, business, 10)
	chain.AddJobPost(foreignJobPost, other, 11)

	factory := NewDerivedWorkOrderFactory(business, chain, zap.NewNop())

	t.Run("Employed job post", func(t *testing.T) {
		first, err := factory.FindOrCreateWorkOrder(ctx, ownJobPost, owner)
		require.NoError(t, err)
		second, err := factory.FindOrCreateWorkOrder(ctx, ownJobPost, owner)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, DeriveWorkOrderAddress(business, ownJobPost, owner), first)

		otherOwner, err := factory.FindOrCreateWorkOrder(ctx, ownJobPost, testutil.RandomAddress(t))
		require.NoError(t, err)
		assert.NotEqual(t, first, otherOwner)
	})

	t.Run("Foreign job post", func(t *testing.T) {
		_, err := factory.FindOrCreateWorkOrder(ctx, foreignJobPost, owner)
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("Unknown job post", func(t *testing.T) {
		_, err := factory.FindOrCreateWorkOrder(ctx, testutil.RandomAddress(t), owner)
		assert.ErrorIs(t, err, ErrNotEligible)
	})
}

type registryFixture struct {
	business common.Address
	jobPost  common.Address
	chain    *contractCaller.TestableContractCallerStub
	factory  *countingFactory
	store    *memory.MemoryPersistence
	registry *Registry
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		business: testutil.RandomAddress(t),
		jobPost:  testutil.RandomAddress(t),
		chain:    contractCaller.NewTestableContractCallerStub(),
		store:    memory.NewMemoryPersistence(zap.NewNop()),
	}
	f.chain.AddJobPost(f.jobPost, f.business, 1)
	f.factory = &countingFactory{
		inner: NewDerivedWorkOrderFactory(f.business, f.chain, zap.NewNop()),
		delay: 20 * time.Millisecond,
	}

	registry, err := NewRegistry(f.factory, f.store, zap.NewNop())
	require.NoError(t, err)
	f.registry = registry
	return f
}

func Test_Registry(t *testing.T) {
	ctx := context.Background()

	t.Run("Cached offer", func(t *testing.T) {
		f := newRegistryFixture(t)
		owner := testutil.RandomAddress(t)

		first, err := f.registry.FindOrCreate(ctx, f.jobPost, owner)
		require.NoError(t, err)
		second, err := f.registry.FindOrCreate(ctx, f.jobPost, owner)
		require.NoError(t, err)

		assert.Equal(t, first.WorkOrder, second.WorkOrder)
		assert.Equal(t, int32(1), f.factory.calls.Load())

		offered, err := f.registry.IsOffered(ctx, first.WorkOrder, owner)
		require.NoError(t, err)
		assert.True(t, offered)

		offered, err = f.registry.IsOffered(ctx, first.WorkOrder, testutil.RandomAddress(t))
		require.NoError(t, err)
		assert.False(t, offered)
	})

	t.Run("Concurrent requests share one creation", func(t *testing.T) {
		f := newRegistryFixture(t)
		owner := testutil.RandomAddress(t)

		var wg sync.WaitGroup
		results := make([]common.Address, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				offer, err := f.registry.FindOrCreate(ctx, f.jobPost, owner)
				assert.NoError(t, err)
				if offer != nil {
					results[i] = offer.WorkOrder
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), f.factory.calls.Load())
		for _, wo := range results {
			assert.Equal(t, results[0], wo)
		}
	})

	t.Run("Owners of one job post get distinct offers", func(t *testing.T) {
		f := newRegistryFixture(t)

		var wg sync.WaitGroup
		owners := []common.Address{testutil.RandomAddress(t), testutil.RandomAddress(t), testutil.RandomAddress(t)}
		for _, owner := range owners {
			wg.Add(1)
			go func(owner common.Address) {
				defer wg.Done()
				_, err := f.registry.FindOrCreate(ctx, f.jobPost, owner)
				assert.NoError(t, err)
			}(owner)
		}
		wg.Wait()

		offers, err := f.store.ListOffers()
		require.NoError(t, err)
		assert.Len(t, offers, len(owners))
		assert.Equal(t, int32(len(owners)), f.factory.calls.Load())
	})

	t.Run("Not eligible is not cached", func(t *testing.T) {
		f := newRegistryFixture(t)
		_, err := f.registry.FindOrCreate(ctx, testutil.RandomAddress(t), testutil.RandomAddress(t))
		assert.ErrorIs(t, err, ErrNotEligible)

		offers, err := f.store.ListOffers()
		require.NoError(t, err)
		assert.Empty(t, offers)
	})

	t.Run("Offers survive a registry restart", func(t *testing.T) {
		f := newRegistryFixture(t)
		owner := testutil.RandomAddress(t)
		offer, err := f.registry.FindOrCreate(ctx, f.jobPost, owner)
		require.NoError(t, err)

		restarted, err := NewRegistry(f.factory, f.store, zap.NewNop())
		require.NoError(t, err)
		offered, err := restarted.IsOffered(ctx, offer.WorkOrder, owner)
		require.NoError(t, err)
		assert.True(t, offered)
	})
}

type handlerFixture struct {
	*registryFixture
	node    *testutil.TestPeer
	offers  *countingOfferBook
	handler *Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	rf := newRegistryFixture(t)
	rf.factory.delay = 0
	offers := &countingOfferBook{IOfferBook: rf.registry}
	return &handlerFixture{
		registryFixture: rf,
		node:            testutil.NewTestPeer(t),
		offers:          offers,
		handler:         NewHandler(offers, NewLedger(rf.store, zap.NewNop()), zap.NewNop()),
	}
}

func (f *handlerFixture) get(t *testing.T) common.Address {
	t.Helper()
	req := NewGetRequest(f.jobPost)
	req.ID = "get-1"
	reply := f.handler.Handle(context.Background(), f.node.Owner, req)
	assert.Equal(t, "get-1", reply.ID)
	workOrder, err := ParseGetReply(reply)
	require.NoError(t, err)
	return workOrder
}

func (f *handlerFixture) accept(t *testing.T, workOrder common.Address, nonce int64) (types.AcceptStatus, error) {
	t.Helper()
	req, err := NewAcceptRequest(f.node.Signer, workOrder, big.NewInt(nonce))
	require.NoError(t, err)
	req.ID = "accept-1"
	return ParseAcceptReply(f.handler.Handle(context.Background(), f.node.Owner, req))
}

func Test_Handler(t *testing.T) {
	ctx := context.Background()

	t.Run("Get returns the offered work order", func(t *testing.T) {
		f := newHandlerFixture(t)
		workOrder := f.get(t)
		assert.Equal(t, DeriveWorkOrderAddress(f.business, f.jobPost, f.node.Owner), workOrder)
		assert.Equal(t, workOrder, f.get(t))
	})

	t.Run("Get for a foreign job post is not eligible", func(t *testing.T) {
		f := newHandlerFixture(t)
		req := NewGetRequest(testutil.RandomAddress(t))
		req.ID = "get-2"
		reply := f.handler.HandleGet(ctx, f.node.Owner, req)
		assert.Equal(t, types.StatusErrored, reply.Status)
		assert.Equal(t, types.ErrorKindNotEligible, reply.Kind)
		assert.Equal(t, req.JobPost, reply.JobPost)

		_, err := ParseGetReply(reply)
		assert.ErrorIs(t, err, types.ErrNotEligible)
	})

	t.Run("Get with malformed job post", func(t *testing.T) {
		f := newHandlerFixture(t)
		reply := f.handler.HandleGet(ctx, f.node.Owner, &types.Frame{Action: types.ActionWorkOrder, Method: types.MethodGet, ID: "x", JobPost: "nope"})
		assert.Equal(t, types.StatusErrored, reply.Status)
		assert.Equal(t, types.ErrorKindProtocolFormat, reply.Kind)
	})

	t.Run("Accept is idempotent without a second eligibility check", func(t *testing.T) {
		f := newHandlerFixture(t)
		workOrder := f.get(t)

		status, err := f.accept(t, workOrder, 1)
		require.NoError(t, err)
		assert.Equal(t, types.AcceptStatusAccepted, status)
		assert.Equal(t, int32(1), f.offers.isOfferedCalls.Load())

		status, err = f.accept(t, workOrder, 1)
		require.NoError(t, err)
		assert.Equal(t, types.AcceptStatusAccepted, status)
		assert.Equal(t, int32(1), f.offers.isOfferedCalls.Load())

		records, err := f.store.ListAcceptances(workOrder)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("Lower or equal nonce is a replay", func(t *testing.T) {
		f := newHandlerFixture(t)
		workOrder := f.get(t)

		_, err := f.accept(t, workOrder, 5)
		require.NoError(t, err)

		status, err := f.accept(t, workOrder, 3)
		assert.Equal(t, types.AcceptStatusRejected, status)
		assert.ErrorIs(t, err, types.ErrReplayRejected)

		status, err = f.accept(t, workOrder, 6)
		require.NoError(t, err)
		assert.Equal(t, types.AcceptStatusAccepted, status)
	})

	t.Run("Acceptance signed by another wallet is refused", func(t *testing.T) {
		f := newHandlerFixture(t)
		workOrder := f.get(t)
		impostor := testutil.NewTestPeer(t)

		req, err := NewAcceptRequest(impostor.Signer, workOrder, big.NewInt(1))
		require.NoError(t, err)
		status, err := ParseAcceptReply(f.handler.HandleAccept(ctx, f.node.Owner, req))
		assert.Equal(t, types.AcceptStatusRejected, status)
		assert.ErrorIs(t, err, types.ErrAuthenticationRefused)

		records, err := f.store.ListAcceptances(workOrder)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Work order not offered to the owner", func(t *testing.T) {
		f := newHandlerFixture(t)
		status, err := f.accept(t, testutil.RandomAddress(t), 1)
		assert.Equal(t, types.AcceptStatusRejected, status)
		assert.ErrorIs(t, err, types.ErrNotEligible)
	})

	t.Run("Malformed accept", func(t *testing.T) {
		f := newHandlerFixture(t)
		workOrder := f.get(t)
		sig, err := SignAcceptance(f.node.Signer, workOrder, true, big.NewInt(1))
		require.NoError(t, err)

		cases := map[string]*types.Frame{
			"bad work order": {WorkOrder: "0x1234", Nonce: "1", Signature: hexutil.Encode(sig)},
			"bad nonce":      {WorkOrder: workOrder.Hex(), Nonce: "one", Signature: hexutil.Encode(sig)},
			"negative nonce": {WorkOrder: workOrder.Hex(), Nonce: "-5", Signature: hexutil.Encode(sig)},
			"bad signature":  {WorkOrder: workOrder.Hex(), Nonce: "1", Signature: "0xdead"},
		}
		for name, req := range cases {
			t.Run(name, func(t *testing.T) {
				req.Action = types.ActionWorkOrder
				req.Method = types.MethodAccept
				req.ID = name
				reply := f.handler.HandleAccept(ctx, f.node.Owner, req)
				assert.Equal(t, types.StatusErrored, reply.Status)
				assert.Equal(t, types.ErrorKindProtocolFormat, reply.Kind)
				assert.Equal(t, name, reply.ID)

				status, err := ParseAcceptReply(reply)
				assert.Equal(t, types.AcceptStatusError, status)
				assert.ErrorIs(t, err, types.ErrProtocolFormat)
			})
		}
	})
}
