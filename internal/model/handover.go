package model

import "time"

// HandoverCode is the verification state of a single match's handover.
// Only a digest of the code is kept.
type HandoverCode struct {
	MatchID     string    `json:"match_id"`
	LostItemID  int64     `json:"lost_item_id"`
	FoundItemID int64     `json:"found_item_id"`
	InitiatorID int64     `json:"initiator_id"`
	CodeHash    string    `json:"-"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Handover code statuses.
const (
	CodeStatusPending  = "pending"
	CodeStatusVerified = "verified"
	CodeStatusBlocked  = "blocked"
	CodeStatusExpired  = "expired"
)

// Handover is the archival record of a completed exchange.
type Handover struct {
	ID                 string    `json:"id"`
	MatchID            string    `json:"match_id"`
	LostItemID         int64     `json:"lost_item_id"`
	FoundItemID        int64     `json:"found_item_id"`
	LostOwnerID        int64     `json:"lost_owner_id"`
	FoundOwnerID       int64     `json:"found_owner_id"`
	LostItemSnapshot   Item      `json:"lost_item"`
	FoundItemSnapshot  Item      `json:"found_item"`
	LostOwnerSnapshot  User      `json:"lost_owner"`
	FoundOwnerSnapshot User      `json:"found_owner"`
	Score              float64   `json:"score"`
	CompletedAt        time.Time `json:"completed_at"`
	LedgerStatus       string    `json:"ledger_status"`
	LedgerTx           string    `json:"ledger_tx,omitempty"`
	LedgerError        string    `json:"ledger_error,omitempty"`
}

// Ledger statuses of a handover record.
const (
	LedgerStatusPending  = "pending"
	LedgerStatusRecorded = "recorded"
	LedgerStatusFailed   = "failed"
)
