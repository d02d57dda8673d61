package match

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

func createItem(t *testing.T, database *sql.DB, item model.Item) *model.Item {
	t.Helper()
	ctx := context.Background()
	owner, err := store.CreateUser(ctx, database, item.Type+item.Name+"@example.com", "owner")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	item.OwnerID = owner.ID
	created, err := store.CreateItem(ctx, database, &item)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return created
}

func TestMatcherRun(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	m := NewMatcher(database, newTestScorer(&stubProvider{score: 95}, nil), nil)

	lost := createItem(t, database, testItem(0, model.ItemTypeLost, 12.9716, 77.5946, occurred))
	found := createItem(t, database, testItem(0, model.ItemTypeFound, 12.9720, 77.5950, occurred))
	other := testItem(0, model.ItemTypeFound, 12.9716, 77.5946, occurred)
	other.Name = "red umbrella"
	other.Color = "red"
	createItem(t, database, other)

	result, err := m.Run(ctx, found.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Item.ID != lost.ID {
		t.Fatalf("unexpected candidates: %+v", result.Candidates)
	}
	if result.Match == nil {
		t.Fatal("expected a match to be persisted")
	}
	if result.Match.LostItemID != lost.ID || result.Match.FoundItemID != found.ID {
		t.Errorf("match pair = (%d, %d), want (%d, %d)",
			result.Match.LostItemID, result.Match.FoundItemID, lost.ID, found.ID)
	}
	if result.Match.Status != model.MatchStatusMatched {
		t.Errorf("match status = %q, want matched", result.Match.Status)
	}

	for _, id := range []int64{lost.ID, found.ID} {
		item, _ := store.GetItem(ctx, database, id)
		if item.Status != model.ItemStatusMatched {
			t.Errorf("item %d status = %q, want matched", id, item.Status)
		}
	}

	if _, err := m.Run(ctx, lost.ID); !errors.Is(err, ErrItemNotPending) {
		t.Errorf("second run: expected ErrItemNotPending, got %v", err)
	}
}

func TestMatcherRunNoCandidates(t *testing.T) {
	database := db.NewTestDB(t)
	m := NewMatcher(database, newTestScorer(&stubProvider{score: 95}, nil), nil)

	lost := createItem(t, database, testItem(0, model.ItemTypeLost, 12.9716, 77.5946, occurred))

	result, err := m.Run(context.Background(), lost.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Match != nil || len(result.Candidates) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}

	item, _ := store.GetItem(context.Background(), database, lost.ID)
	if item.Status != model.ItemStatusPending {
		t.Errorf("status = %q, want pending", item.Status)
	}
}

func TestMatcherRunUnknownItem(t *testing.T) {
	database := db.NewTestDB(t)
	m := NewMatcher(database, newTestScorer(nil, nil), nil)

	if _, err := m.Run(context.Background(), 404); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}
