package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/model"
)

func TestCreateAndGetItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustUser(t, database, "alice")

	local := time.FixedZone("CET", 3600)
	item, err := CreateItem(ctx, database, &model.Item{
		Type:       model.ItemTypeLost,
		Name:       "Umbrella",
		Tags:       []string{"umbrella", "black"},
		Color:      "black",
		OccurredAt: time.Date(2025, 3, 14, 23, 30, 0, 0, local),
		OwnerID:    owner.ID,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.Status != model.ItemStatusPending {
		t.Errorf("expected status 'pending', got %q", item.Status)
	}
	if item.Location != nil {
		t.Errorf("expected no location, got %+v", item.Location)
	}
	if len(item.Tags) != 2 || item.Tags[0] != "umbrella" {
		t.Errorf("unexpected tags %v", item.Tags)
	}
	want := time.Date(2025, 3, 14, 22, 30, 0, 0, time.UTC)
	if !item.OccurredAt.Equal(want) || item.OccurredAt.Location() != time.UTC {
		t.Errorf("expected occurred_at %v in UTC, got %v", want, item.OccurredAt)
	}
}

func TestCreateItemInvalidType(t *testing.T) {
	database := db.NewTestDB(t)
	owner := mustUser(t, database, "alice")

	_, err := CreateItem(context.Background(), database, &model.Item{
		Type:       "stolen",
		Name:       "Bike",
		OccurredAt: baseTime,
		OwnerID:    owner.ID,
	})
	if err == nil {
		t.Error("expected error for invalid item type")
	}
}

func TestGetItemNotFound(t *testing.T) {
	database := db.NewTestDB(t)

	item, err := GetItem(context.Background(), database, 999)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item != nil {
		t.Errorf("expected nil item, got %+v", item)
	}
}

func TestListPendingItems(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustUser(t, database, "alice")

	f1 := mustItem(t, database, model.ItemTypeFound, owner.ID)
	f2 := mustItem(t, database, model.ItemTypeFound, owner.ID)
	mustItem(t, database, model.ItemTypeLost, owner.ID)
	SetItemStatus(ctx, database, f2.ID, model.ItemStatusClaimed)

	items, err := ListPendingItems(ctx, database, model.ItemTypeFound)
	if err != nil {
		t.Fatalf("ListPendingItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != f1.ID {
		t.Errorf("expected only item %d, got %v", f1.ID, items)
	}
}

func TestItemImages(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	owner := mustUser(t, database, "alice")
	item := mustItem(t, database, model.ItemTypeFound, owner.ID)

	if err := AddItemImage(ctx, database, item.ID, []byte{0xff, 0xd8}, "image/jpeg"); err != nil {
		t.Fatalf("AddItemImage: %v", err)
	}
	AddItemImage(ctx, database, item.ID, []byte{0xff, 0xd9}, "image/jpeg")

	images, err := ListItemImages(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("ListItemImages: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.ImageCount != 2 || !got.HasImages() {
		t.Errorf("expected image count 2, got %d", got.ImageCount)
	}
}
