package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

const codeColumns = `match_id, lost_item_id, found_item_id, initiator_id, code_hash, attempts,
	max_attempts, status, expires_at, created_at`

// StartHandover stores a new handover code for a match and marks the match
// as claimed. An existing code is only replaced when it has expired; its
// attempt count carries over. Any other existing code yields ErrConflict.
func StartHandover(ctx context.Context, db *sql.DB, c *model.HandoverCode) error {
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO handover_codes (match_id, lost_item_id, found_item_id, initiator_id, code_hash,
			                             max_attempts, status, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (match_id) DO UPDATE SET
			     code_hash = excluded.code_hash,
			     initiator_id = excluded.initiator_id,
			     status = excluded.status,
			     expires_at = excluded.expires_at
			 WHERE handover_codes.status = ?`,
			c.MatchID, c.LostItemID, c.FoundItemID, c.InitiatorID, c.CodeHash,
			c.MaxAttempts, model.CodeStatusPending, c.ExpiresAt.UTC(), model.CodeStatusExpired,
		)
		if err != nil {
			return fmt.Errorf("storing handover code: %w", err)
		}
		if n, _ := result.RowsAffected(); n != 1 {
			return fmt.Errorf("handover already started: %w", ErrConflict)
		}

		result, err = tx.ExecContext(ctx,
			`UPDATE matches SET status = ? WHERE id = ?`, model.MatchStatusClaimed, c.MatchID,
		)
		if err != nil {
			return fmt.Errorf("claiming match: %w", err)
		}
		if n, _ := result.RowsAffected(); n != 1 {
			return fmt.Errorf("match %s is not active: %w", c.MatchID, ErrConflict)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("starting handover: %w", err)
	}
	return nil
}

// GetHandoverCode returns the handover code of a match.
func GetHandoverCode(ctx context.Context, q Querier, matchID string) (*model.HandoverCode, error) {
	c := &model.HandoverCode{}
	err := q.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM handover_codes WHERE match_id = ?`, matchID,
	).Scan(&c.MatchID, &c.LostItemID, &c.FoundItemID, &c.InitiatorID, &c.CodeHash, &c.Attempts,
		&c.MaxAttempts, &c.Status, &c.ExpiresAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting handover code: %w", err)
	}
	return c, nil
}

// ExpireHandoverCode marks a pending code as expired.
func ExpireHandoverCode(ctx context.Context, db *sql.DB, matchID string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE handover_codes SET status = ? WHERE match_id = ? AND status = ?`,
		model.CodeStatusExpired, matchID, model.CodeStatusPending,
	)
	if err != nil {
		return fmt.Errorf("expiring handover code: %w", err)
	}
	return nil
}

// RecordFailedAttempt increments the attempt counter of a pending code.
// When the counter reaches the maximum, one transaction blocks the code,
// resets the counterpart item to pending, resolves the initiator's own item,
// archives the match and flags the initiator's account. The code is
// returned as it stands after the update. ErrConflict means the code was
// no longer pending.
func RecordFailedAttempt(ctx context.Context, db *sql.DB, matchID string, now time.Time) (*model.HandoverCode, error) {
	var code *model.HandoverCode
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		var attempts, maxAttempts int
		err := tx.QueryRowContext(ctx,
			`UPDATE handover_codes SET attempts = attempts + 1
			 WHERE match_id = ? AND status = ?
			 RETURNING attempts, max_attempts`,
			matchID, model.CodeStatusPending,
		).Scan(&attempts, &maxAttempts)
		if err == sql.ErrNoRows {
			return fmt.Errorf("handover code is not pending: %w", ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("incrementing attempts: %w", err)
		}

		if attempts >= maxAttempts {
			if err := blockHandover(ctx, tx, matchID, now); err != nil {
				return err
			}
		}

		code, err = GetHandoverCode(ctx, tx, matchID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recording failed attempt: %w", err)
	}
	return code, nil
}

func blockHandover(ctx context.Context, tx *sql.Tx, matchID string, now time.Time) error {
	c, err := GetHandoverCode(ctx, tx, matchID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE handover_codes SET status = ? WHERE match_id = ?`, model.CodeStatusBlocked, matchID,
	); err != nil {
		return fmt.Errorf("blocking handover code: %w", err)
	}

	lost, err := GetItem(ctx, tx, c.LostItemID)
	if err != nil {
		return err
	}
	own, counterpart := c.FoundItemID, c.LostItemID
	if lost != nil && lost.OwnerID == c.InitiatorID {
		own, counterpart = c.LostItemID, c.FoundItemID
	}
	if err := SetItemStatus(ctx, tx, counterpart, model.ItemStatusPending); err != nil {
		return err
	}
	if err := SetItemStatus(ctx, tx, own, model.ItemStatusResolved); err != nil {
		return err
	}

	if err := archiveMatch(ctx, tx, matchID, model.MatchOutcomeBlocked, now); err != nil {
		return err
	}

	return BlockUser(ctx, tx, c.InitiatorID)
}
