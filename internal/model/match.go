package model

import "time"

// Match is a scored pairing between one lost and one found item.
type Match struct {
	ID          string             `json:"id"`
	LostItemID  int64              `json:"lost_item_id"`
	FoundItemID int64              `json:"found_item_id"`
	Score       float64            `json:"score"`
	Breakdown   map[string]float64 `json:"breakdown"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Match statuses.
const (
	MatchStatusMatched = "matched"
	MatchStatusClaimed = "claimed"
)

// Outcomes recorded when a match leaves the active set.
const (
	MatchOutcomeCompleted = "completed"
	MatchOutcomeBlocked   = "blocked"
)

// Signal names used in a match breakdown.
const (
	SignalSemantic = "semantic"
	SignalColor    = "color"
	SignalLocation = "location"
	SignalTime     = "time"
	SignalImage    = "image"
)

// Candidate is a scored, not yet persisted match for a query item.
type Candidate struct {
	Item      Item               `json:"item"`
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown"`
}
