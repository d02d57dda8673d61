package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/handover"
	"github.com/erazemk/najdeno/internal/ledger"
	"github.com/erazemk/najdeno/internal/match"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/notify"
	"github.com/erazemk/najdeno/internal/similarity"
	"github.com/erazemk/najdeno/internal/store"
)

// services holds the wired components shared by the commands. recorder
// and conn are nil when no ledger endpoint is configured.
type services struct {
	cfg      *config.Config
	db       *sql.DB
	matcher  *match.Matcher
	handover *handover.Orchestrator
	recorder *ledger.Recorder
	conn     *ledger.Conn
}

// openDatabase opens the configured database and applies migrations.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func openServices(cfg *config.Config) (*services, error) {
	logger := slog.Default()

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	s := &services{cfg: cfg, db: database}

	loadImages := func(ctx context.Context, itemID int64) ([]model.Image, error) {
		return store.ListItemImages(ctx, database, itemID)
	}
	semantic, image, err := similarity.New(cfg.Similarity, loadImages)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("setting up similarity providers: %w", err)
	}
	scorer := match.NewScorer(cfg.Matching, semantic, image, logger)
	s.matcher = match.NewMatcher(database, scorer, logger)

	if cfg.Ledger.Enabled() {
		dial, err := ledger.EthDialer(cfg.Ledger)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("setting up ledger: %w", err)
		}
		s.conn = ledger.NewConn(cfg.Ledger.Endpoints, dial, cfg.Ledger.HealthTimeout, logger)
		s.recorder = ledger.NewRecorder(s.conn, cfg.Ledger, logger)
	}

	var notifier handover.Notifier = notify.NewLog(logger)
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger)
	}

	opts := handover.Options{
		Handover:          cfg.Handover,
		Matching:          cfg.Matching,
		Notifier:          notifier,
		Credits:           handover.StoreCredits{DB: database, Amount: cfg.Handover.Credits},
		SideEffectTimeout: cfg.Ledger.Timeout,
		Logger:            logger,
	}
	if s.recorder != nil {
		opts.Recorder = s.recorder
	}
	s.handover = handover.New(database, opts)

	return s, nil
}

// Close waits for background handover work, then releases the ledger
// binding and the database.
func (s *services) Close() {
	s.handover.Wait()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			slog.Warn("closing ledger connection", "error", err)
		}
	}
	s.db.Close()
}

// runWithServices loads the configuration, sets up logging and runs fn
// with the wired services.
func runWithServices(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg.Log.Path, verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	s, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cmd.Context(), s)
}
