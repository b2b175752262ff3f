package business

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/handshake"
	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/Layr-Labs/workorder-peering-go/pkg/session"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transport"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/workorder"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

/*
Master accepts connections from worker nodes on behalf of one Business
identity.

Connection flow:
  - A node dials the Master's websocket endpoint (published on chain as
    node_ip / node_ws_port in the Business info).
  - The node sends a signed challenge declaring its identity. The Master
    resolves the identity's owner and requires the challenge signer to be
    that owner, then answers with its own signed challenge.
  - The node verifies the Master the same way. Only then does the Master
    answer work order requests on the connection.

Work order flow:
  - get:    jobPost -> work order offered to the verified owner
  - accept: the owner's signed (workOrder, true, nonce), recorded once per
            nonce in the acceptance ledger

Every connection gets its own session; the offer registry and the
challenge replay cache are shared across sessions.
*/

type Config struct {
	Identity common.Address

	Listener         *transport.ListenerConfig
	HandshakeTimeout time.Duration
	ChallengeWindow  time.Duration
}

type Master struct {
	cfg      Config
	signer   transportSigner.ITransportSigner
	resolver peering.IOwnerResolver
	handler  *workorder.Handler
	verifier *handshake.Verifier
	listener *transport.Listener
	logger   *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sessions map[*session.Session]struct{}
	wg       sync.WaitGroup
}

func NewMaster(
	cfg Config,
	signer transportSigner.ITransportSigner,
	resolver peering.IOwnerResolver,
	handler *workorder.Handler,
	logger *zap.Logger,
) *Master {
	logger = logger.With(zap.String("business", cfg.Identity.Hex()))
	return &Master{
		cfg:      cfg,
		signer:   signer,
		resolver: resolver,
		handler:  handler,
		verifier: handshake.NewVerifier(resolver, &handshake.VerifierConfig{ChallengeWindow: cfg.ChallengeWindow}, logger),
		listener: transport.NewListener(cfg.Listener, logger),
		logger:   logger,
		sessions: make(map[*session.Session]struct{}),
	}
}

// VerifyRegistration fails when the Business identity is not owned by the
// Master's signing wallet.
func (m *Master) VerifyRegistration(ctx context.Context) error {
	return peering.VerifyRegistration(ctx, m.resolver, m.cfg.Identity, m.signer.Address())
}

// Start listens on host:port and serves nodes until Stop
func (m *Master) Start(host string, port int) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return fmt.Errorf("master already started")
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	if err := m.listener.Start(host, port, m.onConnect); err != nil {
		return err
	}
	m.logger.Sugar().Infow("Master started", "url", m.listener.URL(), "wallet", m.signer.Address().Hex())
	return nil
}

func (m *Master) onConnect(conn *transport.Connection) {
	s, err := session.New(session.Config{
		Role:             session.RoleAcceptor,
		Signer:           m.signer,
		Identity:         m.cfg.Identity,
		Verifier:         m.verifier,
		WorkOrders:       m.handler,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	}, conn, m.logger)
	if err != nil {
		m.logger.Sugar().Errorw("Failed to create session", "remote", conn.RemoteAddr(), "error", err)
		_ = conn.Close()
		return
	}

	m.mu.Lock()
	if m.ctx == nil || m.ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.sessions[s] = struct{}{}
	m.wg.Add(1)
	ctx := m.ctx
	m.mu.Unlock()

	s.Start(ctx)
	<-s.Done()

	m.mu.Lock()
	delete(m.sessions, s)
	m.mu.Unlock()
	m.wg.Done()
}

// URL is the websocket url nodes dial, empty before Start
func (m *Master) URL() string {
	return m.listener.URL()
}

// Sessions returns the number of live sessions
func (m *Master) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// VerifiedPeers lists the peers of sessions that completed the handshake
func (m *Master) VerifiedPeers() []session.Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]session.Peer, 0, len(m.sessions))
	for s := range m.sessions {
		if p := s.Peer(); p != nil {
			peers = append(peers, *p)
		}
	}
	return peers
}

// Stop closes the listener and every session, waiting for them to end
func (m *Master) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	err := m.listener.Stop(ctx)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for sessions to close: %w", ctx.Err())
	}

	m.logger.Sugar().Infow("Master stopped")
	return err
}
