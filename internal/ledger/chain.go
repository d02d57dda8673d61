// Package ledger anchors privacy-hashed proofs of completed handovers on an
// EVM smart contract.
package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Record is an on-chain handover entry.
type Record struct {
	MatchKey    common.Hash `json:"match_key"`
	LostOwner   common.Hash `json:"lost_owner"`
	FoundOwner  common.Hash `json:"found_owner"`
	Details     common.Hash `json:"details"`
	CompletedAt time.Time   `json:"completed_at"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// Chain is a client bound to a single ledger endpoint.
type Chain interface {
	// BlockNumber is the liveness check.
	BlockNumber(ctx context.Context) (uint64, error)
	IsRecorded(ctx context.Context, key common.Hash) (bool, error)
	// Submit writes a record and waits until it is mined, returning the
	// transaction hash.
	Submit(ctx context.Context, h Hashed) (string, error)
	// GetRecord returns nil when nothing is recorded under key.
	GetRecord(ctx context.Context, key common.Hash) (*Record, error)
	Close()
}

// Dialer connects to one endpoint.
type Dialer func(ctx context.Context, endpoint string) (Chain, error)
