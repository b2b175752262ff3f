package persistence

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
)

// MarshalOffer serializes a WorkOrderOffer to JSON bytes.
func MarshalOffer(offer *types.WorkOrderOffer) ([]byte, error) {
	if offer == nil {
		return nil, fmt.Errorf("cannot marshal nil WorkOrderOffer")
	}
	data, err := json.Marshal(offer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal WorkOrderOffer to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalOffer deserializes a WorkOrderOffer from JSON bytes.
func UnmarshalOffer(data []byte) (*types.WorkOrderOffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}
	var offer types.WorkOrderOffer
	if err := json.Unmarshal(data, &offer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to WorkOrderOffer: %w", err)
	}
	return &offer, nil
}

// MarshalAcceptanceRecord serializes an AcceptanceRecord to JSON bytes.
func MarshalAcceptanceRecord(record *types.AcceptanceRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil AcceptanceRecord")
	}
	if record.Nonce == nil {
		return nil, fmt.Errorf("cannot marshal AcceptanceRecord without nonce")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal AcceptanceRecord to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalAcceptanceRecord deserializes an AcceptanceRecord from JSON bytes.
func UnmarshalAcceptanceRecord(data []byte) (*types.AcceptanceRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}
	var record types.AcceptanceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to AcceptanceRecord: %w", err)
	}
	return &record, nil
}

// MarshalWatcherState serializes WatcherState to JSON bytes.
func MarshalWatcherState(ws *WatcherState) ([]byte, error) {
	if ws == nil {
		return nil, fmt.Errorf("cannot marshal nil WatcherState")
	}
	return json.Marshal(ws)
}

// UnmarshalWatcherState deserializes WatcherState from JSON bytes.
func UnmarshalWatcherState(data []byte) (*WatcherState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}
	var ws WatcherState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to WatcherState: %w", err)
	}
	return &ws, nil
}

// NonceKey encodes a nonce so that lexicographic order matches numeric order
// for nonces below 2^256.
func NonceKey(nonce *big.Int) string {
	return fmt.Sprintf("%064x", nonce)
}

// CopyAcceptanceRecord deep copies a record so callers cannot mutate stored state
func CopyAcceptanceRecord(r *types.AcceptanceRecord) *types.AcceptanceRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Nonce != nil {
		cp.Nonce = new(big.Int).Set(r.Nonce)
	}
	if r.Signature != nil {
		cp.Signature = append([]byte{}, r.Signature...)
	}
	return &cp
}
