package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/match"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// ItemsHandler handles item report endpoints.
type ItemsHandler struct {
	DB      *sql.DB
	Matcher *match.Matcher
}

type createItemRequest struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Color       string          `json:"color"`
	Location    *model.Location `json:"location"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (req *createItemRequest) validate() string {
	switch {
	case req.Type != model.ItemTypeLost && req.Type != model.ItemTypeFound:
		return "type must be lost or found"
	case strings.TrimSpace(req.Name) == "":
		return "name required"
	case req.OccurredAt.IsZero():
		return "occurred_at required"
	case req.OccurredAt.After(time.Now().Add(time.Hour)):
		return "occurred_at is in the future"
	}
	if loc := req.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return "location out of range"
		}
	}
	return ""
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	tags := make([]string, 0, len(req.Tags))
	for _, t := range req.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	item, err := store.CreateItem(r.Context(), h.DB, &model.Item{
		Type:        req.Type,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Tags:        tags,
		Color:       strings.TrimSpace(req.Color),
		Location:    req.Location,
		OccurredAt:  req.OccurredAt,
		OwnerID:     claims.UserID,
	})
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// UploadImage handles PUT /api/items/{id}/images.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item, ok := h.ownedItem(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image must be a JPEG, PNG or WebP photo")
		return
	}

	if err := store.AddItemImage(r.Context(), h.DB, item.ID, photo.Data, photo.MIME); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// FindMatches handles POST /api/items/{id}/matches.
func (h *ItemsHandler) FindMatches(w http.ResponseWriter, r *http.Request) {
	item, ok := h.ownedItem(w, r)
	if !ok {
		return
	}

	result, err := h.Matcher.Run(r.Context(), item.ID)
	switch {
	case errors.Is(err, match.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(err, match.ErrItemNotPending):
		jsonError(w, http.StatusConflict, "item is no longer pending")
		return
	case err != nil:
		jsonError(w, http.StatusInternalServerError, "matching failed")
		return
	}
	if result.Candidates == nil {
		result.Candidates = []model.Candidate{}
	}

	jsonResponse(w, http.StatusOK, result)
}

// ownedItem loads the item named in the path and checks that the caller
// filed it. It writes the error response itself.
func (h *ItemsHandler) ownedItem(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil, false
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	if item.OwnerID != GetClaims(r.Context()).UserID {
		jsonError(w, http.StatusForbidden, "not the owner of this item")
		return nil, false
	}
	return item, true
}
