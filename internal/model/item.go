package model

import "time"

// Item is a filed lost or found report.
type Item struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags"`
	Color       string    `json:"color,omitempty"`
	Location    *Location `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	Status      string    `json:"status"`
	OwnerID     int64     `json:"owner_id"`
	ImageCount  int       `json:"image_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location is a WGS84 coordinate in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Item types.
const (
	ItemTypeLost  = "lost"
	ItemTypeFound = "found"
)

// Item statuses.
const (
	ItemStatusPending  = "pending"
	ItemStatusMatched  = "matched"
	ItemStatusClaimed  = "claimed"
	ItemStatusResolved = "resolved"
)

// OppositeType returns the item type that an item of type t is matched against.
func OppositeType(t string) string {
	if t == ItemTypeLost {
		return ItemTypeFound
	}
	return ItemTypeLost
}

// HasImages reports whether the item has at least one image attached.
func (i *Item) HasImages() bool {
	return i.ImageCount > 0
}

// Image is a stored item photo.
type Image struct {
	ID     int64
	ItemID int64
	Data   []byte
	MIME   string
}
