package workorder

import (
	"fmt"
	"math/big"

	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NewGetRequest builds the Node's request for the work order of jobPost
func NewGetRequest(jobPost common.Address) *types.Frame {
	return &types.Frame{
		Action:  types.ActionWorkOrder,
		Method:  types.MethodGet,
		JobPost: jobPost.Hex(),
	}
}

// ParseGetReply returns the offered work order address
func ParseGetReply(reply *types.Frame) (common.Address, error) {
	if reply.IsError() {
		return common.Address{}, types.ErrorFromFrame(reply)
	}
	if !common.IsHexAddress(reply.Address) {
		return common.Address{}, fmt.Errorf("%w: invalid work order address %q", types.ErrProtocolFormat, reply.Address)
	}
	return common.HexToAddress(reply.Address), nil
}

// NewAcceptRequest signs and builds the Node's acceptance of workOrder
func NewAcceptRequest(signer transportSigner.ITransportSigner, workOrder common.Address, nonce *big.Int) (*types.Frame, error) {
	sig, err := SignAcceptance(signer, workOrder, true, nonce)
	if err != nil {
		return nil, err
	}
	return &types.Frame{
		Action:    types.ActionWorkOrder,
		Method:    types.MethodAccept,
		WorkOrder: workOrder.Hex(),
		Nonce:     nonce.String(),
		Signature: hexutil.Encode(sig),
	}, nil
}

// ParseAcceptReply returns the Master's acknowledgement. A rejected
// acceptance returns AcceptStatusRejected together with the typed reason.
func ParseAcceptReply(reply *types.Frame) (types.AcceptStatus, error) {
	if reply.IsError() {
		return types.AcceptStatusError, types.ErrorFromFrame(reply)
	}
	switch types.AcceptStatus(reply.Status) {
	case types.AcceptStatusAccepted:
		return types.AcceptStatusAccepted, nil
	case types.AcceptStatusRejected:
		return types.AcceptStatusRejected, types.ErrorFromFrame(reply)
	default:
		return types.AcceptStatusError, fmt.Errorf("%w: unexpected accept status %q", types.ErrProtocolFormat, reply.Status)
	}
}
