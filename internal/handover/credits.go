package handover

import (
	"context"
	"database/sql"

	"github.com/erazemk/najdeno/internal/store"
)

// Credit reasons.
const (
	ReasonItemReturned  = "item_returned"
	ReasonItemRecovered = "item_recovered"
)

// StoreCredits awards a fixed amount per reason into the credits table.
type StoreCredits struct {
	DB     *sql.DB
	Amount int
}

func (c StoreCredits) Award(ctx context.Context, userID int64, reason string, itemID int64) error {
	return store.AwardCredits(ctx, c.DB, userID, c.Amount, reason, itemID)
}
