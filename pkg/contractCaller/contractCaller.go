package contractCaller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// ErrJobPostNotFound is returned when no job post contract exists at an address
var ErrJobPostNotFound = errors.New("job post not found")

// BusinessInfo is the JSON document a Business contract publishes through info()
type BusinessInfo struct {
	NodeIP     string `json:"node_ip"`
	NodeWSPort int    `json:"node_ws_port"`
	NodeDomain string `json:"node_domain,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Endpoint returns the websocket url of the Business' Master
func (bi *BusinessInfo) Endpoint() (string, error) {
	host := bi.NodeDomain
	if host == "" {
		host = bi.NodeIP
	}
	if host == "" || bi.NodeWSPort <= 0 {
		return "", fmt.Errorf("business info has no websocket endpoint")
	}
	return fmt.Sprintf("ws://%s", net.JoinHostPort(host, strconv.Itoa(bi.NodeWSPort))), nil
}

func ParseBusinessInfo(raw string) (*BusinessInfo, error) {
	var info BusinessInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("failed to parse business info: %w", err)
	}
	return &info, nil
}

type IContractCaller interface {
	// GetOwner returns the wallet owning a Node or Business identity contract.
	// Returns peering.ErrOwnerNotFound when there is no contract or no owner.
	GetOwner(ctx context.Context, identity common.Address) (common.Address, error)

	GetBusinessInfo(ctx context.Context, business common.Address) (*BusinessInfo, error)

	// GetJobPostEmployer returns the Business identity that created a job post.
	// Returns ErrJobPostNotFound when there is no job post at the address.
	GetJobPostEmployer(ctx context.Context, jobPost common.Address) (common.Address, error)

	GetLatestBlockNumber(ctx context.Context) (uint64, error)

	// FilterJobPostAdded lists JobPostAdded events emitted by registry in [fromBlock, toBlock]
	FilterJobPostAdded(ctx context.Context, registry common.Address, fromBlock, toBlock uint64) ([]*types.JobPost, error)
}
