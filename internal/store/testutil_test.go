package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

var baseTime = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func mustUser(t *testing.T, db *sql.DB, name string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, name+"@example.com", name)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func mustItem(t *testing.T, db *sql.DB, itemType string, ownerID int64) *model.Item {
	t.Helper()
	item, err := CreateItem(context.Background(), db, &model.Item{
		Type:        itemType,
		Name:        fmt.Sprintf("%s wallet", itemType),
		Description: "brown leather wallet",
		Tags:        []string{"wallet", "leather"},
		Color:       "brown",
		Location:    &model.Location{Latitude: 46.0569, Longitude: 14.5058},
		OccurredAt:  baseTime,
		OwnerID:     ownerID,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

// fixture is a matched lost/found pair owned by two different users.
type fixture struct {
	loser, finder *model.User
	lost, found   *model.Item
	match         *model.Match
}

func mustMatch(t *testing.T, db *sql.DB) fixture {
	t.Helper()
	f := fixture{
		loser:  mustUser(t, db, "alice"),
		finder: mustUser(t, db, "bob"),
	}
	f.lost = mustItem(t, db, model.ItemTypeLost, f.loser.ID)
	f.found = mustItem(t, db, model.ItemTypeFound, f.finder.ID)

	m, err := CreateMatch(context.Background(), db, &model.Match{
		ID:          "match-" + f.lost.Name,
		LostItemID:  f.lost.ID,
		FoundItemID: f.found.ID,
		Score:       87.5,
		Breakdown:   map[string]float64{model.SignalSemantic: 90},
		CreatedAt:   baseTime,
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	f.match = m
	return f
}

func mustStartHandover(t *testing.T, db *sql.DB, f fixture, maxAttempts int) {
	t.Helper()
	err := StartHandover(context.Background(), db, &model.HandoverCode{
		MatchID:     f.match.ID,
		LostItemID:  f.lost.ID,
		FoundItemID: f.found.ID,
		InitiatorID: f.loser.ID,
		CodeHash:    "digest",
		MaxAttempts: maxAttempts,
		ExpiresAt:   baseTime.Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("StartHandover: %v", err)
	}
}

func itemStatus(t *testing.T, db *sql.DB, id int64) string {
	t.Helper()
	item, err := GetItem(context.Background(), db, id)
	if err != nil || item == nil {
		t.Fatalf("GetItem(%d): %v", id, err)
	}
	return item.Status
}
