package persistence

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// WatcherState is the job watcher checkpoint a Node resumes from after a restart
type WatcherState struct {
	Registry common.Address `json:"registry"`

	// LastProcessedBlock is the highest block whose JobPostAdded logs were consumed
	LastProcessedBlock uint64 `json:"lastProcessedBlock"`

	UpdatedAt int64 `json:"updatedAt"`
}

// OfferKey is the storage key suffix of an offer
func OfferKey(jobPost, owner common.Address) string {
	return fmt.Sprintf("%s:%s", jobPost.Hex(), owner.Hex())
}
