package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erazemk/najdeno/internal/model"
)

const itemColumns = `id, type, name, description, tags, color, latitude, longitude, occurred_at,
	status, owner_id, created_at, updated_at,
	(SELECT COUNT(*) FROM item_images WHERE item_images.item_id = items.id)`

// CreateItem files a new report. The item always starts as pending.
func CreateItem(ctx context.Context, db *sql.DB, item *model.Item) (*model.Item, error) {
	if item.Type != model.ItemTypeLost && item.Type != model.ItemTypeFound {
		return nil, fmt.Errorf("invalid item type %q", item.Type)
	}

	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encoding tags: %w", err)
	}

	var lat, lon sql.NullFloat64
	if item.Location != nil {
		lat = sql.NullFloat64{Float64: item.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: item.Location.Longitude, Valid: true}
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (type, name, description, tags, color, latitude, longitude, occurred_at, owner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Type, item.Name, item.Description, string(tagsJSON), item.Color,
		lat, lon, item.OccurredAt.UTC(), item.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, q Querier, id int64) (*model.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListPendingItems returns all pending items of the given type, ordered by ID.
func ListPendingItems(ctx context.Context, db *sql.DB, itemType string) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE type = ? AND status = ? ORDER BY id`,
		itemType, model.ItemStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// SetItemStatus updates an item's status.
func SetItemStatus(ctx context.Context, q Querier, id int64, status string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("setting item status: %w", err)
	}
	return nil
}

// AddItemImage attaches an image to an item.
func AddItemImage(ctx context.Context, db *sql.DB, itemID int64, data []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO item_images (item_id, data, mime) VALUES (?, ?, ?)`,
		itemID, data, mime,
	)
	if err != nil {
		return fmt.Errorf("adding item image: %w", err)
	}
	return nil
}

// ListItemImages returns all images attached to an item, oldest first.
func ListItemImages(ctx context.Context, db *sql.DB, itemID int64) ([]model.Image, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, item_id, data, mime FROM item_images WHERE item_id = ? ORDER BY id`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing item images: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.ID, &img.ItemID, &img.Data, &img.MIME); err != nil {
			return nil, fmt.Errorf("scanning item image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func scanItem(s scanner) (*model.Item, error) {
	item := &model.Item{}
	var description, color sql.NullString
	var lat, lon sql.NullFloat64
	var tags string
	err := s.Scan(&item.ID, &item.Type, &item.Name, &description, &tags, &color, &lat, &lon,
		&item.OccurredAt, &item.Status, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt, &item.ImageCount)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.Color = color.String
	if lat.Valid && lon.Valid {
		item.Location = &model.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	item.OccurredAt = item.OccurredAt.UTC()
	return item, nil
}
