package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/najdeno/internal/ledger"
	"github.com/erazemk/najdeno/internal/store"
)

// LedgerHandler reports the ledger state of completed handovers. Recorder
// is nil when ledger recording is disabled.
type LedgerHandler struct {
	DB       *sql.DB
	Recorder *ledger.Recorder
}

type ledgerResponse struct {
	MatchID  string         `json:"match_id"`
	Status   string         `json:"status"`
	TxRef    string         `json:"tx_ref,omitempty"`
	Error    string         `json:"error,omitempty"`
	Enabled  bool           `json:"enabled"`
	Recorded *bool          `json:"recorded,omitempty"`
	Record   *ledger.Record `json:"record,omitempty"`
}

// Get handles GET /api/matches/{id}/ledger.
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	matchID := r.PathValue("id")

	ho, err := store.GetHandoverByMatch(ctx, h.DB, matchID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get handover")
		return
	}
	if ho == nil {
		jsonError(w, http.StatusNotFound, "no completed handover for this match")
		return
	}
	if uid := GetClaims(ctx).UserID; uid != ho.LostOwnerID && uid != ho.FoundOwnerID {
		jsonError(w, http.StatusForbidden, "not a participant of this handover")
		return
	}

	resp := ledgerResponse{
		MatchID: matchID,
		Status:  ho.LedgerStatus,
		TxRef:   ho.LedgerTx,
		Error:   ho.LedgerError,
		Enabled: h.Recorder != nil,
	}
	if h.Recorder == nil {
		jsonResponse(w, http.StatusOK, resp)
		return
	}

	recorded, err := h.Recorder.Verify(ctx, matchID)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "ledger unavailable")
		return
	}
	resp.Recorded = &recorded
	if recorded {
		rec, err := h.Recorder.GetRecord(ctx, matchID)
		if err != nil {
			jsonError(w, http.StatusBadGateway, "ledger unavailable")
			return
		}
		resp.Record = rec
	}

	jsonResponse(w, http.StatusOK, resp)
}
