// Package handover runs the code-verified exchange of a matched item
// between its finder and its owner.
package handover

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/ledger"
	"github.com/erazemk/najdeno/internal/match"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// Notification templates.
const (
	TemplateCode      = "handover_code"
	TemplatePending   = "handover_pending"
	TemplateCompleted = "handover_completed"
	TemplateBlocked   = "handover_blocked"
)

// Notifier delivers a templated message. It reports whether delivery
// succeeded.
type Notifier interface {
	Send(ctx context.Context, recipient, templateID string, data map[string]any) bool
}

// CreditAwarder rewards a user for a completed handover.
type CreditAwarder interface {
	Award(ctx context.Context, userID int64, reason string, itemID int64) error
}

// Recorder anchors a completed handover on the ledger.
type Recorder interface {
	Record(ctx context.Context, f ledger.Facts) ledger.Result
}

// Options configures an Orchestrator. Recorder may be nil to disable ledger
// recording.
type Options struct {
	Handover          config.HandoverConfig
	Matching          config.MatchingConfig
	Notifier          Notifier
	Credits           CreditAwarder
	Recorder          Recorder
	SideEffectTimeout time.Duration
	Logger            *slog.Logger
}

// Orchestrator issues handover codes and verifies them. Calls for the same
// match are serialized; state changes are additionally guarded in SQL so
// several processes may share a database.
type Orchestrator struct {
	db       *sql.DB
	opts     Options
	logger   *slog.Logger
	locks    keyedMutex
	wg       sync.WaitGroup
	now      func() time.Time
	generate func() (string, error)
}

func New(db *sql.DB, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SideEffectTimeout <= 0 {
		opts.SideEffectTimeout = 3 * time.Minute
	}
	return &Orchestrator{
		db:       db,
		opts:     opts,
		logger:   opts.Logger.With("component", "handover"),
		now:      time.Now,
		generate: generateCode,
	}
}

// Result is the outcome of Initiate or Verify. Err carries the typed
// failure when Success is false.
type Result struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
	Err          error  `json:"-"`
}

func failure(err error, msg string) Result {
	return Result{Message: msg, Err: err}
}

// Status is a read-only view of a handover code.
type Status struct {
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Initiate issues a code for a match. The code goes to the owner of the
// lost item and a confirmation request to the finder. A new code may only
// replace an expired one.
func (o *Orchestrator) Initiate(ctx context.Context, matchID string, lostItemID, foundItemID, initiatorID int64) Result {
	unlock := o.locks.lock(matchID)
	defer unlock()

	m, err := store.GetMatch(ctx, o.db, matchID)
	if err != nil {
		return failure(err, "could not load match")
	}
	if m == nil {
		return failure(ErrNotFound, "match not found")
	}
	if m.LostItemID != lostItemID || m.FoundItemID != foundItemID {
		return failure(ErrPairMismatch, ErrPairMismatch.Error())
	}

	lost, found, err := o.loadPair(ctx, lostItemID, foundItemID)
	if err != nil {
		return failure(err, "could not load items")
	}
	if initiatorID != lost.OwnerID && initiatorID != found.OwnerID {
		return failure(ErrNotParticipant, ErrNotParticipant.Error())
	}
	lostOwner, foundOwner, err := o.loadOwners(ctx, lost, found)
	if err != nil {
		return failure(err, "could not load item owners")
	}

	existing, err := store.GetHandoverCode(ctx, o.db, matchID)
	if err != nil {
		return failure(err, "could not load handover")
	}
	if existing != nil {
		switch existing.Status {
		case model.CodeStatusBlocked:
			return failure(ErrBlocked, "handover is blocked")
		case model.CodeStatusVerified:
			return failure(ErrAlreadyStarted, "handover already completed")
		case model.CodeStatusPending:
			if !o.now().After(existing.ExpiresAt) {
				return failure(ErrAlreadyStarted, "a handover code is already active")
			}
			if err := store.ExpireHandoverCode(ctx, o.db, matchID); err != nil {
				return failure(err, "could not expire previous code")
			}
		}
	}

	for _, w := range Validate(*lost, *found, o.opts.Matching) {
		o.logger.Warn("handover validation warning", "match", matchID, "check", w.Check, "detail", w.Detail)
	}

	code, err := o.generate()
	if err != nil {
		return failure(err, "could not generate code")
	}
	now := o.now()
	err = store.StartHandover(ctx, o.db, &model.HandoverCode{
		MatchID:     matchID,
		LostItemID:  lostItemID,
		FoundItemID: foundItemID,
		InitiatorID: initiatorID,
		CodeHash:    digest(matchID, code),
		MaxAttempts: o.opts.Handover.MaxAttempts,
		ExpiresAt:   now.Add(o.opts.Handover.CodeTTL),
	})
	if errors.Is(err, store.ErrConflict) {
		return failure(ErrAlreadyStarted, "a handover code is already active")
	}
	if err != nil {
		return failure(err, "could not start handover")
	}

	expires := now.Add(o.opts.Handover.CodeTTL).UTC()
	if !o.send(ctx, lostOwner, TemplateCode, map[string]any{
		"code":       code,
		"match_id":   matchID,
		"item_name":  lost.Name,
		"expires_at": expires,
	}) {
		if err := store.ExpireHandoverCode(ctx, o.db, matchID); err != nil {
			o.logger.Error("expiring undelivered code", "match", matchID, "error", err)
		}
		return failure(ErrDelivery, "the handover code could not be delivered, try again")
	}
	o.send(ctx, foundOwner, TemplatePending, map[string]any{
		"match_id":   matchID,
		"item_name":  found.Name,
		"expires_at": expires,
	})

	o.logger.Info("handover initiated", "match", matchID, "initiator", initiatorID, "expires_at", expires)
	return Result{Success: true, Message: "handover code sent to the owner of the lost item"}
}

// Verify checks a code against a match's handover. A correct code completes
// the handover; a wrong one uses up an attempt and the last attempt blocks
// it. Verifying an already verified handover succeeds without side effects.
func (o *Orchestrator) Verify(ctx context.Context, matchID, code string) Result {
	unlock := o.locks.lock(matchID)
	defer unlock()

	c, err := store.GetHandoverCode(ctx, o.db, matchID)
	if err != nil {
		return failure(err, "could not load handover")
	}
	if c == nil {
		return failure(ErrNotFound, "handover not found")
	}

	switch c.Status {
	case model.CodeStatusBlocked:
		return failure(ErrBlocked, "handover is blocked")
	case model.CodeStatusVerified:
		return Result{Success: true, Message: "handover already verified"}
	case model.CodeStatusExpired:
		return failure(ErrExpired, "handover code expired")
	}

	now := o.now()
	if now.After(c.ExpiresAt) {
		if err := store.ExpireHandoverCode(ctx, o.db, matchID); err != nil {
			return failure(err, "could not expire code")
		}
		o.logger.Info("handover code expired", "match", matchID)
		return failure(ErrExpired, "handover code expired")
	}

	if !codeMatches(matchID, code, c.CodeHash) {
		return o.rejectCode(ctx, c, now)
	}

	h, err := store.CompleteHandover(ctx, o.db, matchID, uuid.NewString(), now)
	if err != nil {
		o.logger.Error("completing handover", "match", matchID, "error", err)
		return failure(err, "could not complete handover")
	}

	o.logger.Info("handover verified", "match", matchID, "handover", h.ID)
	o.afterCompletion(ctx, h)
	return Result{Success: true, Message: "handover verified"}
}

func (o *Orchestrator) rejectCode(ctx context.Context, c *model.HandoverCode, now time.Time) Result {
	updated, err := store.RecordFailedAttempt(ctx, o.db, c.MatchID, now)
	if errors.Is(err, store.ErrConflict) {
		// Changed by another process since it was read.
		current, gerr := store.GetHandoverCode(ctx, o.db, c.MatchID)
		if gerr == nil && current != nil && current.Status == model.CodeStatusBlocked {
			return failure(ErrBlocked, "handover is blocked")
		}
		return failure(ErrExpired, "handover code is no longer valid")
	}
	if err != nil {
		return failure(err, "could not record attempt")
	}

	left := max(0, updated.MaxAttempts-updated.Attempts)
	o.logger.Warn("invalid handover code", "match", c.MatchID, "attempts", updated.Attempts, "max_attempts", updated.MaxAttempts)

	if updated.Status == model.CodeStatusBlocked {
		o.logger.Warn("handover blocked", "match", c.MatchID, "initiator", c.InitiatorID)
		o.notifyBlocked(ctx, c)
		return Result{Message: "too many failed attempts, handover blocked", AttemptsLeft: &left, Err: ErrBlocked}
	}

	return Result{
		Message:      fmt.Sprintf("invalid code, %d attempts left", left),
		AttemptsLeft: &left,
		Err:          &InvalidCodeError{AttemptsLeft: left},
	}
}

// Status returns the state of a match's handover, or nil if none was
// initiated. A pending code past its expiry is reported as expired.
func (o *Orchestrator) Status(ctx context.Context, matchID string) (*Status, error) {
	c, err := store.GetHandoverCode(ctx, o.db, matchID)
	if err != nil || c == nil {
		return nil, err
	}

	status := c.Status
	if status == model.CodeStatusPending && o.now().After(c.ExpiresAt) {
		status = model.CodeStatusExpired
	}
	return &Status{
		Status:      status,
		Attempts:    c.Attempts,
		MaxAttempts: c.MaxAttempts,
		ExpiresAt:   c.ExpiresAt,
	}, nil
}

// Wait blocks until background credit and ledger work has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// afterCompletion runs the side effects of a verified handover detached
// from the request. Their failures are logged and never undo completion.
func (o *Orchestrator) afterCompletion(ctx context.Context, h *model.Handover) {
	ctx = context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, o.opts.SideEffectTimeout)
		defer cancel()
		o.awardCredits(ctx, h)
		o.notifyCompleted(ctx, h)
	}()

	if o.opts.Recorder == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, o.opts.SideEffectTimeout)
		defer cancel()
		RecordHandover(ctx, o.db, o.opts.Recorder, h, o.logger)
	}()
}

func (o *Orchestrator) awardCredits(ctx context.Context, h *model.Handover) {
	if o.opts.Credits == nil {
		return
	}
	awards := []struct {
		user   int64
		reason string
		item   int64
	}{
		{h.FoundOwnerID, ReasonItemReturned, h.FoundItemID},
		{h.LostOwnerID, ReasonItemRecovered, h.LostItemID},
	}
	for _, a := range awards {
		if err := o.opts.Credits.Award(ctx, a.user, a.reason, a.item); err != nil {
			o.logger.Error("awarding credits", "handover", h.ID, "user", a.user, "reason", a.reason, "error", err)
		}
	}
}

// RecordHandover writes a handover to the ledger and stores the outcome on
// the handover row.
func RecordHandover(ctx context.Context, db *sql.DB, rec Recorder, h *model.Handover, logger *slog.Logger) ledger.Result {
	res := rec.Record(ctx, ledger.FactsFromHandover(h))

	status := model.LedgerStatusRecorded
	if !res.Success {
		status = model.LedgerStatusFailed
	}
	// The record outlives a cancelled request.
	if err := store.SetHandoverLedger(context.WithoutCancel(ctx), db, h.ID, status, res.TxRef, res.Error); err != nil {
		logger.Error("saving ledger state", "handover", h.ID, "error", err)
	}
	return res
}

func (o *Orchestrator) loadPair(ctx context.Context, lostID, foundID int64) (*model.Item, *model.Item, error) {
	lost, err := store.GetItem(ctx, o.db, lostID)
	if err != nil {
		return nil, nil, err
	}
	found, err := store.GetItem(ctx, o.db, foundID)
	if err != nil {
		return nil, nil, err
	}
	if lost == nil || found == nil {
		return nil, nil, ErrNotFound
	}
	return lost, found, nil
}

func (o *Orchestrator) loadOwners(ctx context.Context, lost, found *model.Item) (*model.User, *model.User, error) {
	lostOwner, err := store.GetUser(ctx, o.db, lost.OwnerID)
	if err != nil {
		return nil, nil, err
	}
	foundOwner, err := store.GetUser(ctx, o.db, found.OwnerID)
	if err != nil {
		return nil, nil, err
	}
	if lostOwner == nil || foundOwner == nil {
		return nil, nil, ErrNotFound
	}
	return lostOwner, foundOwner, nil
}

func (o *Orchestrator) send(ctx context.Context, to *model.User, template string, data map[string]any) bool {
	if o.opts.Notifier == nil {
		return true
	}
	ok := o.opts.Notifier.Send(ctx, to.Email, template, data)
	if !ok {
		o.logger.Warn("notification failed", "template", template, "user", to.ID)
	}
	return ok
}

func (o *Orchestrator) notifyBlocked(ctx context.Context, c *model.HandoverCode) {
	lost, found, err := o.loadPair(ctx, c.LostItemID, c.FoundItemID)
	if err != nil {
		o.logger.Error("loading items for notification", "match", c.MatchID, "error", err)
		return
	}
	lostOwner, foundOwner, err := o.loadOwners(ctx, lost, found)
	if err != nil {
		o.logger.Error("loading owners for notification", "match", c.MatchID, "error", err)
		return
	}
	for _, u := range []*model.User{lostOwner, foundOwner} {
		o.send(ctx, u, TemplateBlocked, map[string]any{"match_id": c.MatchID})
	}
}

func (o *Orchestrator) notifyCompleted(ctx context.Context, h *model.Handover) {
	for _, u := range []model.User{h.LostOwnerSnapshot, h.FoundOwnerSnapshot} {
		o.send(ctx, &u, TemplateCompleted, map[string]any{
			"match_id":    h.MatchID,
			"handover_id": h.ID,
			"item_name":   h.LostItemSnapshot.Name,
		})
	}
}

// Validate checks that two items could plausibly be the same object. The
// result is informational.
func Validate(lost, found model.Item, cfg config.MatchingConfig) []ValidationWarning {
	var warnings []ValidationWarning
	if lost.Type != model.ItemTypeLost || found.Type != model.ItemTypeFound {
		warnings = append(warnings, ValidationWarning{"type", fmt.Sprintf("expected lost/found, got %s/%s", lost.Type, found.Type)})
	}
	if lost.Location != nil && found.Location != nil {
		if d := match.Distance(*lost.Location, *found.Location); d > cfg.MaxDistanceKm {
			warnings = append(warnings, ValidationWarning{"distance", fmt.Sprintf("%.2f km apart, limit %.2f km", d, cfg.MaxDistanceKm)})
		}
	}
	if d := match.TimeDiff(lost.OccurredAt, found.OccurredAt); d > cfg.MaxTimeWindow {
		warnings = append(warnings, ValidationWarning{"time", fmt.Sprintf("%s apart, limit %s", d, cfg.MaxTimeWindow)})
	}
	return warnings
}
