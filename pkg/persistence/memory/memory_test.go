package memory

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence"
	"github.com/Layr-Labs/workorder-peering-go/pkg/persistence/persistenceTest"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryPersistence(t *testing.T) {
	persistenceTest.RunSuite(t, func(t *testing.T) persistence.IPeeringPersistence {
		return NewMemoryPersistence(zap.NewNop())
	})
}

func TestMemoryPersistence_ReturnsCopies(t *testing.T) {
	mp := NewMemoryPersistence(zap.NewNop())
	defer func() { _ = mp.Close() }()

	workOrder := common.HexToAddress("0x01")
	record := &types.AcceptanceRecord{WorkOrder: workOrder, Nonce: big.NewInt(1), Signature: []byte{1}}
	require.NoError(t, mp.AppendAcceptance(record))

	record.Nonce.SetInt64(100)
	loaded, err := mp.LoadAcceptance(workOrder, big.NewInt(1))
	require.NoError(t, err)
	require.NotNil(t, loaded)
	loaded.Signature[0] = 9

	again, err := mp.LoadAcceptance(workOrder, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, byte(1), again.Signature[0])

	highest, err := mp.GetHighestNonce(workOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), highest.Int64())
}
