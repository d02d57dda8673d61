package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AwardCredits appends a credit entry and updates the user's balance.
func AwardCredits(ctx context.Context, db *sql.DB, userID int64, amount int, reason string, itemID int64) error {
	var item sql.NullInt64
	if itemID > 0 {
		item = sql.NullInt64{Int64: itemID, Valid: true}
	}

	err := withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credits (user_id, amount, reason, item_id) VALUES (?, ?, ?, ?)`,
			userID, amount, reason, item,
		); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE users SET credits = credits + ? WHERE id = ?`, amount, userID,
		)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n != 1 {
			return fmt.Errorf("user %d not found", userID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("awarding credits: %w", err)
	}
	return nil
}

// CountCredits returns the number of credit entries for a user and reason.
func CountCredits(ctx context.Context, db *sql.DB, userID int64, reason string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credits WHERE user_id = ? AND reason = ?`, userID, reason,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting credits: %w", err)
	}
	return n, nil
}
