package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/erazemk/najdeno/internal/handover"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// HandoverHandler handles the code-verified handover of a match.
type HandoverHandler struct {
	DB           *sql.DB
	Orchestrator *handover.Orchestrator
}

type initiateRequest struct {
	LostItemID  int64 `json:"lost_item_id"`
	FoundItemID int64 `json:"found_item_id"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

// Initiate handles POST /api/matches/{id}/handover.
func (h *HandoverHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LostItemID == 0 || req.FoundItemID == 0 {
		jsonError(w, http.StatusBadRequest, "lost_item_id and found_item_id required")
		return
	}

	res := h.Orchestrator.Initiate(r.Context(), r.PathValue("id"), req.LostItemID, req.FoundItemID, GetClaims(r.Context()).UserID)
	if !res.Success {
		writeHandoverResult(w, res)
		return
	}
	jsonResponse(w, http.StatusAccepted, res)
}

// Verify handles POST /api/matches/{id}/handover/verify.
func (h *HandoverHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		jsonError(w, http.StatusBadRequest, "code required")
		return
	}

	// The lost item's owner receives the code and must not be able to
	// confirm the handover alone.
	c, ok := h.handoverCode(w, r)
	if !ok || !h.requireOwner(w, r, "only the finder can verify the code", c.FoundItemID) {
		return
	}

	res := h.Orchestrator.Verify(r.Context(), r.PathValue("id"), code)
	if !res.Success {
		writeHandoverResult(w, res)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Status handles GET /api/matches/{id}/handover.
func (h *HandoverHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.checkParticipant(w, r) {
		return
	}

	status, err := h.Orchestrator.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get handover status")
		return
	}
	if status == nil {
		jsonError(w, http.StatusNotFound, "handover not found")
		return
	}
	jsonResponse(w, http.StatusOK, status)
}

// checkParticipant resolves the caller against the items of the match's
// handover code, which outlives the active match.
func (h *HandoverHandler) checkParticipant(w http.ResponseWriter, r *http.Request) bool {
	c, ok := h.handoverCode(w, r)
	if !ok {
		return false
	}
	return h.requireOwner(w, r, "not a participant of this handover", c.LostItemID, c.FoundItemID)
}

func (h *HandoverHandler) handoverCode(w http.ResponseWriter, r *http.Request) (*model.HandoverCode, bool) {
	c, err := store.GetHandoverCode(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get handover")
		return nil, false
	}
	if c == nil {
		jsonError(w, http.StatusNotFound, "handover not found")
		return nil, false
	}
	return c, true
}

// requireOwner writes 403 with msg unless the caller owns one of itemIDs.
func (h *HandoverHandler) requireOwner(w http.ResponseWriter, r *http.Request, msg string, itemIDs ...int64) bool {
	ctx := r.Context()
	ok, err := isParticipant(ctx, h.DB, GetClaims(ctx).UserID, itemIDs...)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to check participants")
		return false
	}
	if !ok {
		jsonError(w, http.StatusForbidden, msg)
		return false
	}
	return true
}

func handoverStatus(err error) int {
	var invalid *handover.InvalidCodeError
	switch {
	case errors.Is(err, handover.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, handover.ErrPairMismatch):
		return http.StatusBadRequest
	case errors.Is(err, handover.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, handover.ErrAlreadyStarted):
		return http.StatusConflict
	case errors.Is(err, handover.ErrBlocked):
		return http.StatusLocked
	case errors.Is(err, handover.ErrExpired):
		return http.StatusGone
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, handover.ErrDelivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeHandoverResult(w http.ResponseWriter, res handover.Result) {
	status := handoverStatus(res.Err)
	body := map[string]any{"error": res.Message}
	if res.AttemptsLeft != nil {
		body["attempts_left"] = *res.AttemptsLeft
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}
	jsonResponse(w, status, body)
}
