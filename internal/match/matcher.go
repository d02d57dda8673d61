package match

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrItemNotPending = errors.New("item is not pending")
)

// Matcher runs a matching pass for a single item against the store.
type Matcher struct {
	db     *sql.DB
	scorer *Scorer
	logger *slog.Logger
	now    func() time.Time
}

func NewMatcher(db *sql.DB, scorer *Scorer, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		db:     db,
		scorer: scorer,
		logger: logger.With("component", "matcher"),
		now:    time.Now,
	}
}

// RunResult is the outcome of a matching pass. Match is nil when no
// candidate cleared the threshold.
type RunResult struct {
	Candidates []model.Candidate `json:"candidates"`
	Match      *model.Match      `json:"match,omitempty"`
}

// Run scores the pending items of the opposite type against the item and
// persists the best candidate as a match. When the best candidate was taken
// by a concurrent pass the next one is tried.
func (m *Matcher) Run(ctx context.Context, itemID int64) (*RunResult, error) {
	item, err := store.GetItem(ctx, m.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.Status != model.ItemStatusPending {
		return nil, ErrItemNotPending
	}

	population, err := store.ListPendingItems(ctx, m.db, model.OppositeType(item.Type))
	if err != nil {
		return nil, err
	}

	result := &RunResult{Candidates: m.scorer.FindMatches(ctx, *item, population)}
	m.logger.Info("matching pass", "item", item.ID, "population", len(population), "candidates", len(result.Candidates))

	for _, c := range result.Candidates {
		lost, found := item.ID, c.Item.ID
		if item.Type == model.ItemTypeFound {
			lost, found = found, lost
		}

		match, err := store.CreateMatch(ctx, m.db, &model.Match{
			ID:          uuid.NewString(),
			LostItemID:  lost,
			FoundItemID: found,
			Score:       c.Score,
			Breakdown:   c.Breakdown,
			CreatedAt:   m.now(),
		})
		if errors.Is(err, store.ErrConflict) {
			current, gerr := store.GetItem(ctx, m.db, itemID)
			if gerr != nil {
				return nil, gerr
			}
			if current == nil || current.Status != model.ItemStatusPending {
				return nil, ErrItemNotPending
			}
			m.logger.Info("candidate no longer pending", "item", item.ID, "candidate", c.Item.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persisting match: %w", err)
		}

		m.logger.Info("match created", "match", match.ID, "lost", lost, "found", found, "score", match.Score)
		result.Match = match
		break
	}

	return result, nil
}
