package handshake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State of one side of a handshake
type State int

const (
	StateIdle State = iota
	StateChallengeSent
	StateAwaitingPeerChallenge
	StatePeerVerified
	StateRefused
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateChallengeSent:
		return "ChallengeSent"
	case StateAwaitingPeerChallenge:
		return "AwaitingPeerChallenge"
	case StatePeerVerified:
		return "PeerVerified"
	case StateRefused:
		return "Refused"
	case StateErrored:
		return "Errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StatePeerVerified || s == StateRefused || s == StateErrored
}

var legalTransitions = map[State][]State{
	StateIdle:                  {StateChallengeSent, StateAwaitingPeerChallenge},
	StateChallengeSent:         {StateAwaitingPeerChallenge, StatePeerVerified},
	StateAwaitingPeerChallenge: {StateChallengeSent, StatePeerVerified},
}

// Outcome is the terminal result of one handshake attempt
type Outcome struct {
	Status       string
	Reason       string
	PeerIdentity common.Address
	PeerOwner    common.Address
	Err          error
}

func (o *Outcome) Accepted() bool {
	return o != nil && o.Status == types.StatusAccepted
}

// Handshake is one side of the mutual challenge/response exchange. It is
// driven by the owning session and is not reused across attempts.
type Handshake struct {
	signer   transportSigner.ITransportSigner
	identity common.Address
	verifier *Verifier
	logger   *zap.Logger

	// expectedPeer, when set, is the only identity the peer may declare
	expectedPeer *common.Address

	mu        sync.Mutex
	state     State
	challenge string
	outcome   *Outcome
}

// NewInitiator builds the connecting side. expectedPeer is the identity the
// caller dialed and may be nil to accept any registered identity.
func NewInitiator(
	signer transportSigner.ITransportSigner,
	identity common.Address,
	verifier *Verifier,
	expectedPeer *common.Address,
	logger *zap.Logger,
) *Handshake {
	return &Handshake{
		signer:       signer,
		identity:     identity,
		verifier:     verifier,
		expectedPeer: expectedPeer,
		logger:       logger,
		state:        StateIdle,
	}
}

// NewAcceptor builds the accepting side
func NewAcceptor(
	signer transportSigner.ITransportSigner,
	identity common.Address,
	verifier *Verifier,
	logger *zap.Logger,
) *Handshake {
	return NewInitiator(signer, identity, verifier, nil, logger)
}

func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Outcome returns the terminal outcome, or nil while the handshake is running
func (h *Handshake) Outcome() *Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Begin produces the initiator's request frame
func (h *Handshake) Begin() (*types.Frame, error) {
	frame, err := h.signedFrame()
	if err != nil {
		h.Fail(err)
		return nil, err
	}
	frame.ID = uuid.New().String()

	if err := h.transition(StateChallengeSent); err != nil {
		return nil, err
	}
	return frame, nil
}

// HandleReply consumes the acceptor's reply to Begin
func (h *Handshake) HandleReply(ctx context.Context, reply *types.Frame) *Outcome {
	if st := h.State(); st != StateChallengeSent {
		return h.Fail(fmt.Errorf("%w: unexpected handshake reply in state %s", types.ErrProtocolFormat, st))
	}
	if reply.IsError() {
		return h.Fail(types.ErrorFromFrame(reply))
	}

	switch reply.Status {
	case types.StatusRefused:
		return h.refuse(&types.RefusedError{Reason: reply.Reason})
	case types.StatusAccepted:
	default:
		return h.Fail(fmt.Errorf("%w: unexpected handshake status %q", types.ErrProtocolFormat, reply.Status))
	}

	if err := h.transition(StateAwaitingPeerChallenge); err != nil {
		return h.Outcome()
	}

	peer, signature, err := parseSignedChallenge(reply)
	if err != nil {
		return h.Fail(err)
	}
	if h.expectedPeer != nil && *h.expectedPeer != peer {
		return h.refuse(types.NewRefusedError("peer declared identity %s, expected %s", peer.Hex(), h.expectedPeer.Hex()))
	}
	if reply.Challenge == h.challenge {
		return h.refuse(types.NewRefusedError("peer echoed our own challenge"))
	}

	owner, err := h.verifier.Verify(ctx, peer, reply.Challenge, signature)
	if err != nil {
		return h.failOrRefuse(err)
	}
	return h.verified(peer, owner)
}

// HandleRequest consumes an initiator's request and returns the reply to send
func (h *Handshake) HandleRequest(ctx context.Context, req *types.Frame) (*types.Frame, *Outcome) {
	if st := h.State(); st != StateIdle {
		err := fmt.Errorf("%w: handshake already %s on this connection", types.ErrProtocolFormat, st)
		return req.ErrorReply(types.ErrorKindProtocolFormat, err.Error()), h.Abort(err)
	}

	if err := h.transition(StateAwaitingPeerChallenge); err != nil {
		return req.ErrorReply(types.KindForError(err), err.Error()), h.Outcome()
	}

	peer, signature, err := parseSignedChallenge(req)
	if err != nil {
		return req.ErrorReply(types.KindForError(err), err.Error()), h.Fail(err)
	}

	owner, err := h.verifier.Verify(ctx, peer, req.Challenge, signature)
	if err != nil {
		outcome := h.failOrRefuse(err)
		if outcome.Status == types.StatusRefused {
			return &types.Frame{
				Action: types.ActionHandshake,
				ID:     req.ID,
				Status: types.StatusRefused,
				Reason: outcome.Reason,
			}, outcome
		}
		return req.ErrorReply(types.KindForError(err), err.Error()), outcome
	}

	reply, err := h.signedFrame()
	if err != nil {
		return req.ErrorReply(types.ErrorKindInternal, err.Error()), h.Fail(err)
	}
	reply.ID = req.ID
	reply.Status = types.StatusAccepted

	if err := h.transition(StateChallengeSent); err != nil {
		return req.ErrorReply(types.KindForError(err), err.Error()), h.Outcome()
	}
	return reply, h.verified(peer, owner)
}

// Fail terminates the handshake as Errored. Transport failures and caller
// timeouts arrive here.
func (h *Handshake) Fail(err error) *Outcome {
	return h.finish(StateErrored, &Outcome{
		Status: types.StatusErrored,
		Reason: err.Error(),
		Err:    err,
	})
}

func (h *Handshake) refuse(err *types.RefusedError) *Outcome {
	return h.finish(StateRefused, &Outcome{
		Status: types.StatusRefused,
		Reason: err.Reason,
		Err:    err,
	})
}

func (h *Handshake) failOrRefuse(err error) *Outcome {
	var refused *types.RefusedError
	if errors.As(err, &refused) {
		return h.refuse(refused)
	}
	return h.Fail(err)
}

func (h *Handshake) verified(peer, owner common.Address) *Outcome {
	if err := h.transition(StatePeerVerified); err != nil {
		return h.Outcome()
	}
	outcome := &Outcome{
		Status:       types.StatusAccepted,
		PeerIdentity: peer,
		PeerOwner:    owner,
	}
	h.mu.Lock()
	h.outcome = outcome
	h.mu.Unlock()

	h.logger.Sugar().Infow("Handshake verified peer", "peer", peer.Hex(), "owner", owner.Hex())
	return outcome
}

// Abort moves the handshake to Errored even when the peer was already
// verified. A second handshake on one connection ends here.
func (h *Handshake) Abort(err error) *Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Sugar().Warnw("Handshake errored", "from", h.state.String(), "error", err)
	h.state = StateErrored
	h.outcome = &Outcome{Status: types.StatusErrored, Reason: err.Error(), Err: err}
	return h.outcome
}

func (h *Handshake) finish(state State, outcome *Outcome) *Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Terminal() {
		return h.outcome
	}
	h.logger.Sugar().Infow("Handshake finished",
		"from", h.state.String(),
		"to", state.String(),
		"reason", outcome.Reason,
	)
	h.state = state
	h.outcome = outcome
	return outcome
}

func (h *Handshake) transition(to State) error {
	h.mu.Lock()
	from := h.state
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			h.state = to
			h.mu.Unlock()
			h.logger.Sugar().Debugw("Handshake state changed", "from", from.String(), "to", to.String())
			return nil
		}
	}
	h.mu.Unlock()

	err := fmt.Errorf("%w: illegal handshake transition %s -> %s", types.ErrProtocolFormat, from, to)
	h.Fail(err)
	return err
}

func (h *Handshake) signedFrame() (*types.Frame, error) {
	challenge, err := GenerateChallenge(h.verifier.now())
	if err != nil {
		return nil, err
	}
	sig, err := h.signer.SignMessage([]byte(challenge))
	if err != nil {
		return nil, fmt.Errorf("failed to sign challenge: %w", err)
	}

	h.mu.Lock()
	h.challenge = challenge
	h.mu.Unlock()

	return &types.Frame{
		Action:    types.ActionHandshake,
		Identity:  h.identity.Hex(),
		Challenge: challenge,
		Signature: hexutil.Encode(sig),
	}, nil
}

func parseSignedChallenge(f *types.Frame) (common.Address, []byte, error) {
	if !common.IsHexAddress(f.Identity) {
		return common.Address{}, nil, fmt.Errorf("%w: invalid identity %q", types.ErrProtocolFormat, f.Identity)
	}
	if f.Challenge == "" {
		return common.Address{}, nil, fmt.Errorf("%w: missing challenge", types.ErrProtocolFormat)
	}
	signature, err := DecodeSignature(f.Signature)
	if err != nil {
		return common.Address{}, nil, err
	}
	return common.HexToAddress(f.Identity), signature, nil
}

// DecodeSignature accepts a hex signature with or without the 0x prefix
func DecodeSignature(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing signature", types.ErrProtocolFormat)
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(strings.ToLower(s[:2]) + s[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature encoding: %v", types.ErrProtocolFormat, err)
	}
	if len(sig) != transportSigner.SignatureLength {
		return nil, fmt.Errorf("%w: signature must be %d bytes, got %d", types.ErrProtocolFormat, transportSigner.SignatureLength, len(sig))
	}
	return sig, nil
}
