package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// MatchesHandler handles match lookups.
type MatchesHandler struct {
	DB *sql.DB
}

// Get handles GET /api/matches/{id}.
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := participantMatch(w, r, h.DB)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// participantMatch loads the match named in the path and checks that the
// caller owns one of its items. It writes the error response itself.
func participantMatch(w http.ResponseWriter, r *http.Request, db *sql.DB) (*model.Match, bool) {
	ctx := r.Context()
	id := r.PathValue("id")

	m, err := store.GetMatch(ctx, db, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get match")
		return nil, false
	}
	if m == nil {
		jsonError(w, http.StatusNotFound, "match not found")
		return nil, false
	}

	ok, err := isParticipant(ctx, db, GetClaims(ctx).UserID, m.LostItemID, m.FoundItemID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to check participants")
		return nil, false
	}
	if !ok {
		jsonError(w, http.StatusForbidden, "not a participant of this match")
		return nil, false
	}
	return m, true
}

func isParticipant(ctx context.Context, db *sql.DB, userID int64, itemIDs ...int64) (bool, error) {
	for _, id := range itemIDs {
		item, err := store.GetItem(ctx, db, id)
		if err != nil {
			return false, err
		}
		if item != nil && item.OwnerID == userID {
			return true, nil
		}
	}
	return false, nil
}
