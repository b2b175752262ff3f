package workorder

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/workorder-peering-go/pkg/handshake"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Handler answers work order requests on the Master side. owner is always
// the wallet bound to the session by a successful handshake.
type Handler struct {
	offers IOfferBook
	ledger *Ledger
	logger *zap.Logger
}

func NewHandler(offers IOfferBook, ledger *Ledger, logger *zap.Logger) *Handler {
	return &Handler{
		offers: offers,
		ledger: ledger,
		logger: logger,
	}
}

// Handle dispatches on the frame's method
func (h *Handler) Handle(ctx context.Context, owner common.Address, req *types.Frame) *types.Frame {
	switch req.Method {
	case types.MethodGet:
		return h.HandleGet(ctx, owner, req)
	case types.MethodAccept:
		return h.HandleAccept(ctx, owner, req)
	default:
		return req.ErrorReply(types.ErrorKindProtocolFormat, fmt.Sprintf("unknown workorder method %q", req.Method))
	}
}

func (h *Handler) HandleGet(ctx context.Context, owner common.Address, req *types.Frame) *types.Frame {
	if !common.IsHexAddress(req.JobPost) {
		return req.ErrorReply(types.ErrorKindProtocolFormat, fmt.Sprintf("invalid job post address %q", req.JobPost))
	}
	jobPost := common.HexToAddress(req.JobPost)

	offer, err := h.offers.FindOrCreate(ctx, jobPost, owner)
	if err != nil {
		if !errors.Is(err, types.ErrNotEligible) {
			h.logger.Sugar().Errorw("Failed to find or create work order", "jobPost", jobPost.Hex(), "owner", owner.Hex(), "error", err)
		}
		return req.ErrorReply(types.KindForError(err), err.Error())
	}

	return &types.Frame{
		Action:  types.ActionWorkOrder,
		Method:  types.MethodGet,
		ID:      req.ID,
		JobPost: jobPost.Hex(),
		Address: offer.WorkOrder.Hex(),
	}
}

// HandleAccept verifies the acceptance signature against the session owner,
// returns the stored status for an already accepted (workOrder, nonce), and
// otherwise checks the offer and records the acceptance.
func (h *Handler) HandleAccept(ctx context.Context, owner common.Address, req *types.Frame) *types.Frame {
	workOrder, nonce, signature, err := parseAcceptRequest(req)
	if err != nil {
		return req.ErrorReply(types.ErrorKindProtocolFormat, err.Error())
	}

	signer, err := RecoverAcceptanceSigner(workOrder, true, nonce, signature)
	if err != nil {
		return rejectReply(req, types.NewRefusedError("invalid acceptance signature: %v", err))
	}
	if signer != owner {
		h.logger.Sugar().Warnw("Acceptance not signed by session owner",
			"workOrder", workOrder.Hex(),
			"owner", owner.Hex(),
			"signer", signer.Hex(),
		)
		return rejectReply(req, types.NewRefusedError("acceptance was not signed by %s", owner.Hex()))
	}

	existing, err := h.ledger.Lookup(workOrder, nonce)
	if err != nil {
		return req.ErrorReply(types.ErrorKindInternal, err.Error())
	}
	if existing != nil {
		if existing.Owner == owner && existing.Status == types.AcceptStatusAccepted {
			h.logger.Sugar().Debugw("Repeated acceptance", "workOrder", workOrder.Hex(), "nonce", nonce.String())
			return acceptReply(req, existing.Status)
		}
		return rejectReply(req, fmt.Errorf("%w: nonce %s already used on work order %s", types.ErrReplayRejected, nonce.String(), workOrder.Hex()))
	}

	offered, err := h.offers.IsOffered(ctx, workOrder, owner)
	if err != nil {
		return req.ErrorReply(types.ErrorKindInternal, err.Error())
	}
	if !offered {
		return rejectReply(req, fmt.Errorf("%w: work order %s was not offered to %s", types.ErrNotEligible, workOrder.Hex(), owner.Hex()))
	}

	record, err := h.ledger.Record(workOrder, owner, nonce, signature)
	if errors.Is(err, types.ErrReplayRejected) {
		return rejectReply(req, err)
	}
	if err != nil {
		h.logger.Sugar().Errorw("Failed to record acceptance", "workOrder", workOrder.Hex(), "error", err)
		return req.ErrorReply(types.ErrorKindInternal, err.Error())
	}
	return acceptReply(req, record.Status)
}

func parseAcceptRequest(req *types.Frame) (common.Address, *big.Int, []byte, error) {
	if !common.IsHexAddress(req.WorkOrder) {
		return common.Address{}, nil, nil, fmt.Errorf("%w: invalid work order address %q", types.ErrProtocolFormat, req.WorkOrder)
	}
	nonce, err := ParseNonce(req.Nonce)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	signature, err := handshake.DecodeSignature(req.Signature)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return common.HexToAddress(req.WorkOrder), nonce, signature, nil
}

func acceptReply(req *types.Frame, status types.AcceptStatus) *types.Frame {
	return &types.Frame{
		Action:    types.ActionWorkOrder,
		Method:    types.MethodAccept,
		ID:        req.ID,
		WorkOrder: req.WorkOrder,
		Nonce:     req.Nonce,
		Status:    string(status),
	}
}

func rejectReply(req *types.Frame, err error) *types.Frame {
	reply := acceptReply(req, types.AcceptStatusRejected)
	reply.Kind = types.KindForError(err)
	reply.Reason = err.Error()
	var refused *types.RefusedError
	if errors.As(err, &refused) {
		reply.Reason = refused.Reason
	}
	return reply
}
