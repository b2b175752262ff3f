package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// WorkOrderOffer is the work order a Master proposed to a node owner for a job post
type WorkOrderOffer struct {
	JobPost   common.Address `json:"jobPost"`
	WorkOrder common.Address `json:"workOrder"`
	Owner     common.Address `json:"owner"`
	CreatedAt int64          `json:"createdAt"` // unix seconds
}

// AcceptanceRecord is the Master's ledger entry for a node's accept of a work order.
type AcceptanceRecord struct {
	WorkOrder  common.Address `json:"workOrder"`
	Owner      common.Address `json:"owner"`
	Nonce      *big.Int       `json:"nonce"`
	Signature  []byte         `json:"signature"`
	Status     AcceptStatus   `json:"status"`
	RecordedAt int64          `json:"recordedAt"` // unix seconds
}

// JobPost is a job post discovered on chain
type JobPost struct {
	Address     common.Address `json:"address"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"txHash"`
}
