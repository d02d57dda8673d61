package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/model"
)

func TestStartHandover(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := mustMatch(t, database)
	mustStartHandover(t, database, f, 3)

	c, err := GetHandoverCode(ctx, database, f.match.ID)
	if err != nil || c == nil {
		t.Fatalf("GetHandoverCode: %v", err)
	}
	if c.Status != model.CodeStatusPending || c.Attempts != 0 || c.MaxAttempts != 3 {
		t.Errorf("unexpected code %+v", c)
	}

	m, _ := GetMatch(ctx, database, f.match.ID)
	if m.Status != model.MatchStatusClaimed {
		t.Errorf("expected match 'claimed', got %q", m.Status)
	}
}

func TestStartHandoverTwiceRejected(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := mustMatch(t, database)
	mustStartHandover(t, database, f, 3)

	err := StartHandover(ctx, database, &model.HandoverCode{
		MatchID: f.match.ID, LostItemID: f.lost.ID, FoundItemID: f.found.ID,
		InitiatorID: f.loser.ID, CodeHash: "other", MaxAttempts: 3, ExpiresAt: baseTime,
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestStartHandoverReplacesExpiredCode(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := mustMatch(t, database)
	mustStartHandover(t, database, f, 3)

	RecordFailedAttempt(ctx, database, f.match.ID, baseTime)
	if err := ExpireHandoverCode(ctx, database, f.match.ID); err != nil {
		t.Fatalf("ExpireHandoverCode: %v", err)
	}

	err := StartHandover(ctx, database, &model.HandoverCode{
		MatchID: f.match.ID, LostItemID: f.lost.ID, FoundItemID: f.found.ID,
		InitiatorID: f.loser.ID, CodeHash: "fresh", MaxAttempts: 3,
		ExpiresAt: baseTime.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("StartHandover after expiry: %v", err)
	}

	c, _ := GetHandoverCode(ctx, database, f.match.ID)
	if c.Status != model.CodeStatusPending || c.CodeHash != "fresh" {
		t.Errorf("expected fresh pending code, got %+v", c)
	}
	if c.Attempts != 1 {
		t.Errorf("attempts should carry over, got %d", c.Attempts)
	}
}

func TestRecordFailedAttemptBlocks(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := mustMatch(t, database)
	mustStartHandover(t, database, f, 2)

	c, err := RecordFailedAttempt(ctx, database, f.match.ID, baseTime)
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if c.Attempts != 1 || c.Status != model.CodeStatusPending {
		t.Errorf("after first miss: %+v", c)
	}

	c, err = RecordFailedAttempt(ctx, database, f.match.ID, baseTime)
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if c.Attempts != 2 || c.Status != model.CodeStatusBlocked {
		t.Errorf("after second miss: %+v", c)
	}

	if s := itemStatus(t, database, f.found.ID); s != model.ItemStatusPending {
		t.Errorf("counterpart item should be pending, got %q", s)
	}
	if s := itemStatus(t, database, f.lost.ID); s != model.ItemStatusResolved {
		t.Errorf("initiator's item should be resolved, got %q", s)
	}
	if m, _ := GetMatch(ctx, database, f.match.ID); m != nil {
		t.Error("match should be removed")
	}
	if o, _ := MatchOutcome(ctx, database, f.match.ID); o != model.MatchOutcomeBlocked {
		t.Errorf("expected archived outcome 'blocked', got %q", o)
	}
	if blocked, _ := IsUserBlocked(ctx, database, f.loser.ID); !blocked {
		t.Error("initiator should be blocked")
	}
	if blocked, _ := IsUserBlocked(ctx, database, f.finder.ID); blocked {
		t.Error("counterparty should not be blocked")
	}

	_, err = RecordFailedAttempt(ctx, database, f.match.ID, baseTime)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on blocked code, got %v", err)
	}
}

func TestCompleteHandover(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := mustMatch(t, database)
	mustStartHandover(t, database, f, 3)

	h, err := CompleteHandover(ctx, database, f.match.ID, "handover-1", baseTime)
	if err != nil {
		t.Fatalf("CompleteHandover: %v", err)
	}
	if h.ID != "handover-1" || h.Score != 87.5 {
		t.Errorf("unexpected handover %+v", h)
	}
	if h.LostOwnerSnapshot.Email != "alice@example.com" || h.FoundOwnerSnapshot.Email != "bob@example.com" {
		t.Errorf("owner snapshots not captured: %+v %+v", h.LostOwnerSnapshot, h.FoundOwnerSnapshot)
	}
	if h.LostItemSnapshot.Status != model.ItemStatusClaimed {
		t.Errorf("snapshot should reflect claimed status, got %q", h.LostItemSnapshot.Status)
	}
	if h.LedgerStatus != model.LedgerStatusPending {
		t.Errorf("expected ledger status 'pending', got %q", h.LedgerStatus)
	}

	for _, id := range []int64{f.lost.ID, f.found.ID} {
		if s := itemStatus(t, database, id); s != model.ItemStatusClaimed {
			t.Errorf("item %d: expected 'claimed', got %q", id, s)
		}
	}
	c, _ := GetHandoverCode(ctx, database, f.match.ID)
	if c.Status != model.CodeStatusVerified {
		t.Errorf("expected code 'verified', got %q", c.Status)
	}
	if o, _ := MatchOutcome(ctx, database, f.match.ID); o != model.MatchOutcomeCompleted {
		t.Errorf("expected archived outcome 'completed', got %q", o)
	}

	// A second completion finds nothing pending and changes nothing.
	if _, err := CompleteHandover(ctx, database, f.match.ID, "handover-2", baseTime); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestCompleteHandoverAtomic(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := mustMatch(t, database)
	mustStartHandover(t, database, f, 3)

	// A pre-existing archive row for this match makes the insert fail midway.
	database.ExecContext(ctx,
		`INSERT INTO handovers (id, match_id, lost_item_id, found_item_id, lost_owner_id, found_owner_id,
		 lost_item_snapshot, found_item_snapshot, lost_owner_snapshot, found_owner_snapshot, score, completed_at)
		 VALUES ('x', ?, ?, ?, ?, ?, '{}', '{}', '{}', '{}', 0, ?)`,
		f.match.ID, f.lost.ID, f.found.ID, f.loser.ID, f.finder.ID, baseTime)

	if _, err := CompleteHandover(ctx, database, f.match.ID, "handover-1", baseTime); err == nil {
		t.Fatal("expected completion to fail")
	}

	c, _ := GetHandoverCode(ctx, database, f.match.ID)
	if c.Status != model.CodeStatusPending {
		t.Errorf("code should still be pending, got %q", c.Status)
	}
	if s := itemStatus(t, database, f.lost.ID); s != model.ItemStatusMatched {
		t.Errorf("lost item should still be matched, got %q", s)
	}
	if m, _ := GetMatch(ctx, database, f.match.ID); m == nil {
		t.Error("match should still be active")
	}
}

func TestSetHandoverLedger(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := mustMatch(t, database)
	mustStartHandover(t, database, f, 3)
	h, _ := CompleteHandover(ctx, database, f.match.ID, "handover-1", baseTime)

	if err := SetHandoverLedger(ctx, database, h.ID, model.LedgerStatusFailed, "", "all endpoints down"); err != nil {
		t.Fatalf("SetHandoverLedger: %v", err)
	}
	failed, _ := ListHandoversByLedgerStatus(ctx, database, model.LedgerStatusFailed)
	if len(failed) != 1 || failed[0].LedgerError != "all endpoints down" {
		t.Errorf("expected one failed handover, got %+v", failed)
	}

	SetHandoverLedger(ctx, database, h.ID, model.LedgerStatusRecorded, "0xabc", "")
	got, _ := GetHandoverByMatch(ctx, database, f.match.ID)
	if got.LedgerTx != "0xabc" || got.LedgerError != "" || got.LedgerStatus != model.LedgerStatusRecorded {
		t.Errorf("unexpected ledger state %+v", got)
	}
}
