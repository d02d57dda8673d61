package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

const handoverColumns = `id, match_id, lost_item_id, found_item_id, lost_owner_id, found_owner_id,
	lost_item_snapshot, found_item_snapshot, lost_owner_snapshot, found_owner_snapshot,
	score, completed_at, ledger_status, ledger_tx, ledger_error`

// CompleteHandover performs the verified completion of a handover in one
// transaction: the code is marked verified, both items become claimed, an
// archival handover record with item and owner snapshots is written and the
// match is moved to history. Nothing is applied if any step fails.
func CompleteHandover(ctx context.Context, db *sql.DB, matchID, handoverID string, now time.Time) (*model.Handover, error) {
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE handover_codes SET status = ? WHERE match_id = ? AND status = ?`,
			model.CodeStatusVerified, matchID, model.CodeStatusPending,
		)
		if err != nil {
			return fmt.Errorf("verifying handover code: %w", err)
		}
		if n, _ := result.RowsAffected(); n != 1 {
			return fmt.Errorf("handover code is not pending: %w", ErrConflict)
		}

		m, err := GetMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("match %s is not active: %w", matchID, ErrConflict)
		}

		for _, id := range []int64{m.LostItemID, m.FoundItemID} {
			if err := SetItemStatus(ctx, tx, id, model.ItemStatusClaimed); err != nil {
				return err
			}
		}

		h := &model.Handover{
			ID:           handoverID,
			MatchID:      matchID,
			LostItemID:   m.LostItemID,
			FoundItemID:  m.FoundItemID,
			Score:        m.Score,
			CompletedAt:  now.UTC(),
			LedgerStatus: model.LedgerStatusPending,
		}
		if err := snapshot(ctx, tx, h); err != nil {
			return err
		}
		if err := insertHandover(ctx, tx, h); err != nil {
			return err
		}

		return archiveMatch(ctx, tx, matchID, model.MatchOutcomeCompleted, now)
	})
	if err != nil {
		return nil, fmt.Errorf("completing handover: %w", err)
	}

	return GetHandoverByMatch(ctx, db, matchID)
}

func snapshot(ctx context.Context, tx *sql.Tx, h *model.Handover) error {
	lost, err := GetItem(ctx, tx, h.LostItemID)
	if err != nil {
		return err
	}
	found, err := GetItem(ctx, tx, h.FoundItemID)
	if err != nil {
		return err
	}
	if lost == nil || found == nil {
		return fmt.Errorf("matched item missing: %w", ErrConflict)
	}

	lostOwner, err := GetUser(ctx, tx, lost.OwnerID)
	if err != nil {
		return err
	}
	foundOwner, err := GetUser(ctx, tx, found.OwnerID)
	if err != nil {
		return err
	}
	if lostOwner == nil || foundOwner == nil {
		return fmt.Errorf("item owner missing: %w", ErrConflict)
	}

	h.LostItemSnapshot, h.FoundItemSnapshot = *lost, *found
	h.LostOwnerSnapshot, h.FoundOwnerSnapshot = *lostOwner, *foundOwner
	h.LostOwnerID, h.FoundOwnerID = lost.OwnerID, found.OwnerID
	return nil
}

func insertHandover(ctx context.Context, tx *sql.Tx, h *model.Handover) error {
	snapshots := make([]string, 0, 4)
	for _, v := range []any{h.LostItemSnapshot, h.FoundItemSnapshot, h.LostOwnerSnapshot, h.FoundOwnerSnapshot} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		snapshots = append(snapshots, string(data))
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO handovers (id, match_id, lost_item_id, found_item_id, lost_owner_id, found_owner_id,
		                        lost_item_snapshot, found_item_snapshot, lost_owner_snapshot, found_owner_snapshot,
		                        score, completed_at, ledger_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.MatchID, h.LostItemID, h.FoundItemID, h.LostOwnerID, h.FoundOwnerID,
		snapshots[0], snapshots[1], snapshots[2], snapshots[3],
		h.Score, h.CompletedAt, h.LedgerStatus,
	)
	if err != nil {
		return fmt.Errorf("archiving handover: %w", err)
	}
	return nil
}

// GetHandoverByMatch returns the archival handover record of a match.
func GetHandoverByMatch(ctx context.Context, db *sql.DB, matchID string) (*model.Handover, error) {
	h, err := scanHandover(db.QueryRowContext(ctx,
		`SELECT `+handoverColumns+` FROM handovers WHERE match_id = ?`, matchID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting handover: %w", err)
	}
	return h, nil
}

// ListHandoversByLedgerStatus returns handovers in the given ledger state,
// oldest first.
func ListHandoversByLedgerStatus(ctx context.Context, db *sql.DB, status string) ([]model.Handover, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+handoverColumns+` FROM handovers WHERE ledger_status = ? ORDER BY completed_at`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("listing handovers: %w", err)
	}
	defer rows.Close()

	var handovers []model.Handover
	for rows.Next() {
		h, err := scanHandover(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning handover: %w", err)
		}
		handovers = append(handovers, *h)
	}
	return handovers, rows.Err()
}

// SetHandoverLedger attaches the outcome of a ledger write to a handover.
// These are the only columns of a handover that change after archival.
func SetHandoverLedger(ctx context.Context, db *sql.DB, id, status, tx, errMsg string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE handovers SET ledger_status = ?, ledger_tx = NULLIF(?, ''), ledger_error = NULLIF(?, '')
		 WHERE id = ?`,
		status, tx, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("setting handover ledger state: %w", err)
	}
	return nil
}

func scanHandover(s scanner) (*model.Handover, error) {
	h := &model.Handover{}
	var lostItem, foundItem, lostOwner, foundOwner string
	var ledgerTx, ledgerErr sql.NullString
	err := s.Scan(&h.ID, &h.MatchID, &h.LostItemID, &h.FoundItemID, &h.LostOwnerID, &h.FoundOwnerID,
		&lostItem, &foundItem, &lostOwner, &foundOwner,
		&h.Score, &h.CompletedAt, &h.LedgerStatus, &ledgerTx, &ledgerErr)
	if err != nil {
		return nil, err
	}
	h.LedgerTx = ledgerTx.String
	h.LedgerError = ledgerErr.String

	targets := []struct {
		data string
		dst  any
	}{
		{lostItem, &h.LostItemSnapshot},
		{foundItem, &h.FoundItemSnapshot},
		{lostOwner, &h.LostOwnerSnapshot},
		{foundOwner, &h.FoundOwnerSnapshot},
	}
	for _, t := range targets {
		if err := json.Unmarshal([]byte(t.data), t.dst); err != nil {
			return nil, fmt.Errorf("decoding snapshot: %w", err)
		}
	}
	return h, nil
}
