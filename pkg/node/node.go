package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/handshake"
	"github.com/Layr-Labs/workorder-peering-go/pkg/peering"
	"github.com/Layr-Labs/workorder-peering-go/pkg/session"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transport"
	"github.com/Layr-Labs/workorder-peering-go/pkg/transportSigner"
	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	DefaultJobSearchTimeout = 5 * time.Minute
	DefaultRequestTimeout   = 30 * time.Second
	DefaultFailureDelay     = 5 * time.Second
)

// IJobFinder blocks until the next job post is discovered
type IJobFinder interface {
	FindNextJob(ctx context.Context) (*types.JobPost, error)
}

// IEmployerLookup returns the Business that published a job post
type IEmployerLookup interface {
	GetJobPostEmployer(ctx context.Context, jobPost common.Address) (common.Address, error)
}

type Config struct {
	Identity common.Address

	// MasterURL, when set, is dialed instead of the employer's published endpoint
	MasterURL string

	JobSearchTimeout time.Duration
	RequestTimeout   time.Duration
	ChallengeWindow  time.Duration

	// FailureDelay is the pause after a failed job before the next search
	FailureDelay time.Duration

	DialRetry *transport.RetryConfig
}

// JobResult describes one job post the node worked through
type JobResult struct {
	JobPost   *types.JobPost
	Employer  common.Address
	MasterURL string
	WorkOrder common.Address
	Nonce     *big.Int
	Status    types.AcceptStatus
}

// Node is the worker side: it discovers job posts, connects to the
// employer's Master, authenticates it and accepts the offered work order.
type Node struct {
	cfg       Config
	signer    transportSigner.ITransportSigner
	resolver  peering.IPeeringDataFetcher
	employers IEmployerLookup
	jobs      IJobFinder
	verifier  *handshake.Verifier
	logger    *zap.Logger

	mu        sync.Mutex
	lastNonce *big.Int
	now       func() time.Time
}

func NewNode(
	cfg Config,
	signer transportSigner.ITransportSigner,
	resolver peering.IPeeringDataFetcher,
	employers IEmployerLookup,
	jobs IJobFinder,
	logger *zap.Logger,
) *Node {
	if cfg.JobSearchTimeout <= 0 {
		cfg.JobSearchTimeout = DefaultJobSearchTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.FailureDelay <= 0 {
		cfg.FailureDelay = DefaultFailureDelay
	}
	if cfg.DialRetry == nil {
		retry := transport.DefaultRetryConfig
		cfg.DialRetry = &retry
	}
	logger = logger.With(zap.String("node", cfg.Identity.Hex()))
	return &Node{
		cfg:       cfg,
		signer:    signer,
		resolver:  resolver,
		employers: employers,
		jobs:      jobs,
		verifier:  handshake.NewVerifier(resolver, &handshake.VerifierConfig{ChallengeWindow: cfg.ChallengeWindow}, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// VerifyRegistration fails when the node identity is not owned by the
// node's signing wallet.
func (n *Node) VerifyRegistration(ctx context.Context) error {
	return peering.VerifyRegistration(ctx, n.resolver, n.cfg.Identity, n.signer.Address())
}

// Run processes job posts until ctx is cancelled. A failed job is logged
// and the node moves on to the next one.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Sugar().Infow("Node running", "wallet", n.signer.Address().Hex())
	for {
		result, err := n.RunOnce(ctx)
		if ctx.Err() != nil {
			n.logger.Sugar().Infow("Node stopped")
			return nil
		}
		if err != nil {
			n.logger.Sugar().Errorw("Failed to process job post", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(n.cfg.FailureDelay):
			}
			continue
		}
		n.logger.Sugar().Infow("Job post processed",
			"jobPost", result.JobPost.Address.Hex(),
			"workOrder", result.WorkOrder.Hex(),
			"status", result.Status,
		)
	}
}

// RunOnce waits for the next job post and processes it
func (n *Node) RunOnce(ctx context.Context) (*JobResult, error) {
	post, err := n.findNextJob(ctx)
	if err != nil {
		return nil, err
	}
	return n.ProcessJob(ctx, post)
}

// findNextJob retries discovery each time a search window expires
func (n *Node) findNextJob(ctx context.Context) (*types.JobPost, error) {
	for {
		searchCtx, cancel := context.WithTimeout(ctx, n.cfg.JobSearchTimeout)
		post, err := n.jobs.FindNextJob(searchCtx)
		cancel()
		if err == nil {
			n.logger.Sugar().Infow("Job post found", "jobPost", post.Address.Hex(), "block", post.BlockNumber)
			return post, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, types.ErrTimeout) {
			return nil, err
		}
		n.logger.Sugar().Infow("Timeout waiting for the next job, retrying")
	}
}

// ProcessJob connects to the employer of post and accepts its work order.
// A rejected accept returns the result together with the rejection error.
func (n *Node) ProcessJob(ctx context.Context, post *types.JobPost) (*JobResult, error) {
	result := &JobResult{JobPost: post}

	employer, err := n.employers.GetJobPostEmployer(ctx, post.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get employer of job post %s: %w", post.Address.Hex(), err)
	}
	result.Employer = employer

	url, err := n.masterURL(ctx, employer)
	if err != nil {
		return nil, err
	}
	result.MasterURL = url

	conn, err := transport.DialWithRetry(ctx, url, nil, *n.cfg.DialRetry, n.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to master of %s: %w", employer.Hex(), err)
	}

	s, err := session.New(session.Config{
		Role:         session.RoleInitiator,
		Signer:       n.signer,
		Identity:     n.cfg.Identity,
		Verifier:     n.verifier,
		ExpectedPeer: &employer,
	}, conn, n.logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.Start(ctx)
	defer func() {
		_ = s.Close()
	}()

	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	_, err = s.Handshake(reqCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("handshake with master of %s failed: %w", employer.Hex(), err)
	}

	reqCtx, cancel = context.WithTimeout(ctx, n.cfg.RequestTimeout)
	workOrder, err := s.GetWorkOrder(reqCtx, post.Address)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to get work order for %s: %w", post.Address.Hex(), err)
	}
	result.WorkOrder = workOrder
	n.logger.Sugar().Infow("Work order offered", "jobPost", post.Address.Hex(), "workOrder", workOrder.Hex())

	result.Nonce = n.nextNonce()
	reqCtx, cancel = context.WithTimeout(ctx, n.cfg.RequestTimeout)
	result.Status, err = s.AcceptWorkOrder(reqCtx, workOrder, result.Nonce)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to accept work order %s: %w", workOrder.Hex(), err)
	}
	return result, nil
}

func (n *Node) masterURL(ctx context.Context, employer common.Address) (string, error) {
	if n.cfg.MasterURL != "" {
		return n.cfg.MasterURL, nil
	}
	url, err := n.resolver.ResolveEndpoint(ctx, employer)
	if err != nil {
		return "", fmt.Errorf("failed to resolve master endpoint of %s: %w", employer.Hex(), err)
	}
	return url, nil
}

// nextNonce returns a nonce strictly greater than every earlier one and at
// least the current unix time in nanoseconds, so restarts keep increasing.
func (n *Node) nextNonce() *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()

	nonce := big.NewInt(n.now().UnixNano())
	if n.lastNonce != nil && nonce.Cmp(n.lastNonce) <= 0 {
		nonce = new(big.Int).Add(n.lastNonce, big.NewInt(1))
	}
	n.lastNonce = nonce
	return new(big.Int).Set(nonce)
}
