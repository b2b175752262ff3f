package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/handshake"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transport"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/Layr-Labs/workorder-peering-go/pkg/workorder"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Role int

const (
	// RoleInitiator dials, authenticates first and drives work order requests
	RoleInitiator Role = iota
	// RoleAcceptor answers handshakes and work order requests
	RoleAcceptor
)

func (r Role) String() string {
	if r == RoleAcceptor {
		return "acceptor"
	}
	return "initiator"
}

// DefaultHandshakeTimeout is how long an acceptor waits for a peer to
// authenticate before dropping the connection.
const DefaultHandshakeTimeout = 30 * time.Second

type Config struct {
	Role     Role
	Signer   transportSigner.ITransportSigner
	Identity common.Address
	Verifier *handshake.Verifier

	// ExpectedPeer restricts the identity an acceptor may declare. Initiator only.
	ExpectedPeer *common.Address

	// WorkOrders answers work order requests. Acceptor only.
	WorkOrders *workorder.Handler

	// HandshakeTimeout bounds the time before an acceptor's peer is verified
	HandshakeTimeout time.Duration
}

// Peer is the verified remote side of a session
type Peer struct {
	Identity common.Address
	Owner    common.Address
}

type result struct {
	frame *types.Frame
	err   error
}

type pendingRequest struct {
	id     string
	result chan result
	once   sync.Once

	// onReply runs on the session loop before the caller is woken, so its
	// effects land ahead of any later frame or close on the connection.
	onReply func(ctx context.Context, reply *types.Frame)
}

func (p *pendingRequest) resolve(r result) {
	p.once.Do(func() {
		p.result <- r
	})
}

// Session runs the protocol over one connection. Inbound frames are handled
// one at a time, in arrival order, by the session loop. Outbound requests
// are correlated by (action, method) with at most one in flight per key.
type Session struct {
	cfg    Config
	conn   *transport.Connection
	hs     *handshake.Handshake
	logger *zap.Logger

	mu      sync.Mutex
	pending map[types.RouteKey]*pendingRequest
	peer    *Peer
	closed  bool

	started sync.Once
	done    chan struct{}
	err     error
}

func New(cfg Config, conn *transport.Connection, logger *zap.Logger) (*Session, error) {
	if cfg.Signer == nil {
		return nil, fmt.Errorf("session signer is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("session verifier is required")
	}
	if cfg.Role == RoleAcceptor && cfg.WorkOrders == nil {
		return nil, fmt.Errorf("acceptor session requires a work order handler")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	logger = logger.With(zap.String("role", cfg.Role.String()), zap.String("remote", conn.RemoteAddr()))

	var hs *handshake.Handshake
	if cfg.Role == RoleAcceptor {
		hs = handshake.NewAcceptor(cfg.Signer, cfg.Identity, cfg.Verifier, logger)
	} else {
		hs = handshake.NewInitiator(cfg.Signer, cfg.Identity, cfg.Verifier, cfg.ExpectedPeer, logger)
	}

	return &Session{
		cfg:     cfg,
		conn:    conn,
		hs:      hs,
		logger:  logger,
		pending: make(map[types.RouteKey]*pendingRequest),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the session loop in the background until the connection ends
// or ctx is cancelled.
func (s *Session) Start(ctx context.Context) {
	s.started.Do(func() {
		go s.run(ctx)
	})
}

// Done is closed once the session loop has exited and every pending request
// has been resolved.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is the connection error that ended the session, if any
func (s *Session) Err() error {
	<-s.done
	return s.err
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// Peer returns the verified peer, or nil before a successful handshake
func (s *Session) Peer() *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return nil
	}
	p := *s.peer
	return &p
}

func (s *Session) HandshakeState() handshake.State {
	return s.hs.State()
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	var handshakeDeadline <-chan time.Time
	if s.cfg.Role == RoleAcceptor {
		timer := time.NewTimer(s.cfg.HandshakeTimeout)
		defer timer.Stop()
		handshakeDeadline = timer.C
	}

	inbound := s.conn.Inbound()
	for {
		select {
		case data, ok := <-inbound:
			if !ok {
				s.shutdown(s.conn.Err())
				return
			}
			s.handleInbound(ctx, data)

		case <-handshakeDeadline:
			handshakeDeadline = nil
			if s.Peer() == nil {
				s.logger.Sugar().Warnw("Peer did not authenticate in time, closing connection", "timeout", s.cfg.HandshakeTimeout)
				s.hs.Fail(fmt.Errorf("%w: no handshake within %s", types.ErrTimeout, s.cfg.HandshakeTimeout))
				_ = s.conn.Close()
			}

		case <-ctx.Done():
			_ = s.conn.Close()
			s.shutdown(nil)
			return
		}
	}
}

func (s *Session) shutdown(err error) {
	s.mu.Lock()
	s.closed = true
	pending := s.pending
	s.pending = make(map[types.RouteKey]*pendingRequest)
	s.err = err
	s.mu.Unlock()

	for key, p := range pending {
		s.logger.Sugar().Debugw("Cancelling pending request", "route", key.String(), "id", p.id)
		p.resolve(result{err: fmt.Errorf("%w: while waiting for %s reply", types.ErrConnectionClosed, key)})
	}
	if s.hs.Outcome() == nil {
		s.hs.Fail(types.ErrConnectionClosed)
	}
	s.logger.Sugar().Infow("Session ended", "error", err)
}

func (s *Session) handleInbound(ctx context.Context, data []byte) {
	frame, err := types.UnmarshalFrame(data)
	if err != nil {
		if frame == nil || frame.ID == "" || frame.IsError() {
			s.logger.Sugar().Warnw("Dropping malformed frame", "error", err)
			return
		}
		s.logger.Sugar().Warnw("Rejecting invalid frame", "id", frame.ID, "error", err)
		s.send(ctx, frame.ErrorReply(types.ErrorKindProtocolFormat, err.Error()))
		return
	}

	if s.resolvePending(ctx, frame) {
		return
	}

	if s.cfg.Role != RoleAcceptor {
		s.logger.Sugar().Warnw("Dropping unsolicited frame", "route", frame.Route().String(), "id", frame.ID)
		return
	}
	if frame.IsError() {
		s.logger.Sugar().Warnw("Peer reported an error", "route", frame.Route().String(), "reason", frame.Reason)
		return
	}

	switch frame.Action {
	case types.ActionHandshake:
		s.handleHandshakeRequest(ctx, frame)
	case types.ActionWorkOrder:
		s.handleWorkOrderRequest(ctx, frame)
	}
}

func (s *Session) resolvePending(ctx context.Context, frame *types.Frame) bool {
	key := frame.Route()

	s.mu.Lock()
	p, ok := s.pending[key]
	if ok && p.id == frame.ID {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if !ok || p.id != frame.ID {
		return false
	}
	if p.onReply != nil {
		p.onReply(ctx, frame)
	}
	p.resolve(result{frame: frame})
	return true
}

func (s *Session) handleHandshakeRequest(ctx context.Context, req *types.Frame) {
	reply, outcome := s.hs.HandleRequest(ctx, req)
	s.send(ctx, reply)

	if outcome.Accepted() {
		s.bind(outcome)
		return
	}

	// Refused and Errored are terminal for the connection
	s.unbind()
	s.logger.Sugar().Infow("Closing connection after failed handshake", "status", outcome.Status, "reason", outcome.Reason)
	_ = s.conn.Close()
}

func (s *Session) handleWorkOrderRequest(ctx context.Context, req *types.Frame) {
	peer := s.Peer()
	if peer == nil {
		s.logger.Sugar().Warnw("Work order request before handshake", "route", req.Route().String())
		s.send(ctx, req.ErrorReply(types.ErrorKindUnauthorized, "peer has not completed the handshake"))
		return
	}
	s.send(ctx, s.cfg.WorkOrders.Handle(ctx, peer.Owner, req))
}

func (s *Session) send(ctx context.Context, frame *types.Frame) {
	data, err := types.MarshalFrame(frame)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to marshal frame", "error", err)
		return
	}
	if err := s.conn.Send(ctx, data); err != nil {
		s.logger.Sugar().Warnw("Failed to send frame", "route", frame.Route().String(), "error", err)
	}
}

func (s *Session) bind(outcome *handshake.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer = &Peer{Identity: outcome.PeerIdentity, Owner: outcome.PeerOwner}
}

func (s *Session) unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer = nil
}

// request sends frame and waits for the correlated reply. Exactly one of the
// reply, types.ErrConnectionClosed or types.ErrTimeout is returned.
func (s *Session) request(ctx context.Context, frame *types.Frame) (*types.Frame, error) {
	return s.requestWith(ctx, frame, nil)
}

func (s *Session) requestWith(ctx context.Context, frame *types.Frame, onReply func(context.Context, *types.Frame)) (*types.Frame, error) {
	key := frame.Route()
	if frame.ID == "" {
		frame.ID = uuid.New().String()
	}
	p := &pendingRequest{id: frame.ID, result: make(chan result, 1), onReply: onReply}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, types.ErrConnectionClosed
	}
	if _, busy := s.pending[key]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", types.ErrRequestInFlight, key)
	}
	s.pending[key] = p
	s.mu.Unlock()

	defer s.release(key, p)

	data, err := types.MarshalFrame(frame)
	if err != nil {
		return nil, err
	}
	if err := s.conn.Send(ctx, data); err != nil {
		return nil, err
	}

	select {
	case r := <-p.result:
		return r.frame, r.err
	case <-ctx.Done():
		// a reply or close that raced the deadline still wins
		select {
		case r := <-p.result:
			return r.frame, r.err
		default:
		}
		return nil, fmt.Errorf("%w: waiting for %s reply: %v", types.ErrTimeout, key, ctx.Err())
	}
}

func (s *Session) release(key types.RouteKey, p *pendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[key] == p {
		delete(s.pending, key)
	}
}

// Handshake authenticates both sides. It returns the outcome and, unless the
// peer was verified, an error: *types.RefusedError for a refusal, otherwise
// the transport, timeout or protocol error.
func (s *Session) Handshake(ctx context.Context) (*handshake.Outcome, error) {
	if s.cfg.Role != RoleInitiator {
		return nil, fmt.Errorf("only the initiator starts a handshake")
	}
	if st := s.hs.State(); st != handshake.StateIdle {
		err := fmt.Errorf("%w: handshake already %s on this connection", types.ErrProtocolFormat, st)
		outcome := s.hs.Abort(err)
		s.unbind()
		_ = s.conn.Close()
		return outcome, err
	}

	req, err := s.hs.Begin()
	if err != nil {
		return s.hs.Outcome(), err
	}

	// The acceptor closes the connection right after a refusal, so the reply
	// is applied on the session loop before that close is observed.
	reply, err := s.requestWith(ctx, req, s.applyHandshakeReply)
	if err != nil {
		// no-op when the reply was applied just before the failure
		outcome := s.hs.Fail(err)
		if outcome.Accepted() {
			return outcome, nil
		}
		return outcome, outcome.Err
	}

	outcome := s.hs.Outcome()
	if outcome == nil {
		outcome = s.hs.HandleReply(ctx, reply)
	}
	if !outcome.Accepted() {
		return outcome, outcome.Err
	}
	return outcome, nil
}

func (s *Session) applyHandshakeReply(ctx context.Context, reply *types.Frame) {
	if outcome := s.hs.HandleReply(ctx, reply); outcome.Accepted() {
		s.bind(outcome)
	}
}

// GetWorkOrder asks the Master for the work order it offers for jobPost
func (s *Session) GetWorkOrder(ctx context.Context, jobPost common.Address) (common.Address, error) {
	if err := s.requireVerified(); err != nil {
		return common.Address{}, err
	}
	reply, err := s.request(ctx, workorder.NewGetRequest(jobPost))
	if err != nil {
		return common.Address{}, err
	}
	return workorder.ParseGetReply(reply)
}

// AcceptWorkOrder signs and sends an acceptance of workOrder with nonce
func (s *Session) AcceptWorkOrder(ctx context.Context, workOrder common.Address, nonce *big.Int) (types.AcceptStatus, error) {
	if err := s.requireVerified(); err != nil {
		return types.AcceptStatusError, err
	}
	req, err := workorder.NewAcceptRequest(s.cfg.Signer, workOrder, nonce)
	if err != nil {
		return types.AcceptStatusError, err
	}
	reply, err := s.request(ctx, req)
	if err != nil {
		return types.AcceptStatusError, err
	}
	return workorder.ParseAcceptReply(reply)
}

func (s *Session) requireVerified() error {
	if s.cfg.Role != RoleInitiator {
		return fmt.Errorf("only the initiator sends work order requests")
	}
	if s.Peer() == nil {
		return fmt.Errorf("%w: handshake has not completed", types.ErrUnauthorized)
	}
	return nil
}

// IsFatal reports whether err leaves the session unusable
func IsFatal(err error) bool {
	return errors.Is(err, types.ErrConnectionClosed) || errors.Is(err, types.ErrTransport)
}
