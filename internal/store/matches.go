package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// ErrConflict is returned when a guarded update finds the row in an
// unexpected state, for example an item that is no longer pending.
var ErrConflict = errors.New("conflicting state")

const matchColumns = `id, lost_item_id, found_item_id, score, breakdown, status, created_at`

// CreateMatch persists a match and marks both items as matched in a single
// transaction. Both items must still be pending.
func CreateMatch(ctx context.Context, db *sql.DB, m *model.Match) (*model.Match, error) {
	breakdown, err := json.Marshal(m.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("encoding breakdown: %w", err)
	}

	err = withTx(ctx, db, func(tx *sql.Tx) error {
		for _, id := range []int64{m.LostItemID, m.FoundItemID} {
			result, err := tx.ExecContext(ctx,
				`UPDATE items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
				model.ItemStatusMatched, id, model.ItemStatusPending,
			)
			if err != nil {
				return fmt.Errorf("marking item %d matched: %w", id, err)
			}
			if n, _ := result.RowsAffected(); n != 1 {
				return fmt.Errorf("item %d is not pending: %w", id, ErrConflict)
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO matches (id, lost_item_id, found_item_id, score, breakdown, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.LostItemID, m.FoundItemID, m.Score, string(breakdown), model.MatchStatusMatched, m.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting match: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating match: %w", err)
	}

	return GetMatch(ctx, db, m.ID)
}

// GetMatch returns an active match by ID.
func GetMatch(ctx context.Context, q Querier, id string) (*model.Match, error) {
	m := &model.Match{}
	var breakdown string
	err := q.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id,
	).Scan(&m.ID, &m.LostItemID, &m.FoundItemID, &m.Score, &breakdown, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &m.Breakdown); err != nil {
		return nil, fmt.Errorf("decoding breakdown: %w", err)
	}
	return m, nil
}

// archiveMatch moves an active match to match_history with the given outcome.
func archiveMatch(ctx context.Context, tx *sql.Tx, id, outcome string, closedAt time.Time) error {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO match_history (id, lost_item_id, found_item_id, score, breakdown, outcome, created_at, closed_at)
		 SELECT id, lost_item_id, found_item_id, score, breakdown, ?, created_at, ?
		 FROM matches WHERE id = ?`,
		outcome, closedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("archiving match: %w", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return fmt.Errorf("match %s is not active: %w", id, ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("removing match: %w", err)
	}
	return nil
}

// MatchOutcome returns the archived outcome of a match, or "" if the match
// was never archived.
func MatchOutcome(ctx context.Context, db *sql.DB, id string) (string, error) {
	var outcome string
	err := db.QueryRowContext(ctx,
		`SELECT outcome FROM match_history WHERE id = ?`, id,
	).Scan(&outcome)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting match outcome: %w", err)
	}
	return outcome, nil
}
