// Package api exposes item reporting, matching and handovers over HTTP.
package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/najdeno/internal/handover"
	"github.com/erazemk/najdeno/internal/ledger"
	"github.com/erazemk/najdeno/internal/match"
)

// Deps are the services behind the API. Ledger may be nil when ledger
// recording is disabled.
type Deps struct {
	DB        *sql.DB
	JWTSecret string
	Matcher   *match.Matcher
	Handover  *handover.Orchestrator
	Ledger    *ledger.Recorder
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	itemsHandler := &ItemsHandler{DB: d.DB, Matcher: d.Matcher}
	matchesHandler := &MatchesHandler{DB: d.DB}
	handoverHandler := &HandoverHandler{DB: d.DB, Orchestrator: d.Handover}
	ledgerHandler := &LedgerHandler{DB: d.DB, Recorder: d.Ledger}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Items.
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}/images", authMW(http.HandlerFunc(itemsHandler.UploadImage)))
	mux.Handle("POST /api/items/{id}/matches", authMW(http.HandlerFunc(itemsHandler.FindMatches)))

	// Matches and their handover.
	mux.Handle("GET /api/matches/{id}", authMW(http.HandlerFunc(matchesHandler.Get)))
	mux.Handle("POST /api/matches/{id}/handover", authMW(http.HandlerFunc(handoverHandler.Initiate)))
	mux.Handle("POST /api/matches/{id}/handover/verify", authMW(http.HandlerFunc(handoverHandler.Verify)))
	mux.Handle("GET /api/matches/{id}/handover", authMW(http.HandlerFunc(handoverHandler.Status)))
	mux.Handle("GET /api/matches/{id}/ledger", authMW(http.HandlerFunc(ledgerHandler.Get)))

	return mux
}
