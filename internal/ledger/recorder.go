package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/najdeno/internal/config"
)

// Result is the outcome of a Record call. AlreadyRecorded results are
// successful.
type Result struct {
	Success         bool   `json:"success"`
	TxRef           string `json:"tx_ref,omitempty"`
	AlreadyRecorded bool   `json:"already_recorded,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Recorder writes handover proofs through a Conn, retrying network-class
// failures with exponential backoff.
type Recorder struct {
	conn       *Conn
	maxRetries int
	backoff    time.Duration
	salt       string
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewRecorder(conn *Conn, cfg config.LedgerConfig, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		conn:       conn,
		maxRetries: max(0, cfg.MaxRetries),
		backoff:    cfg.Backoff,
		salt:       cfg.IDSalt,
		logger:     logger.With("component", "ledger"),
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Record anchors the hashed facts. An existing record for the match is
// reported as success with AlreadyRecorded set.
func (r *Recorder) Record(ctx context.Context, f Facts) Result {
	hashed, err := f.Hash(r.salt)
	if err != nil {
		return Result{Error: err.Error()}
	}

	var tx string
	err = r.do(ctx, "record", func(ch Chain) error {
		recorded, err := ch.IsRecorded(ctx, hashed.MatchKey)
		if err != nil {
			return fmt.Errorf("checking record: %w", err)
		}
		if recorded {
			return ErrAlreadyRecorded
		}
		tx, err = ch.Submit(ctx, hashed)
		if err != nil {
			// A concurrent writer may have won the race; its record counts.
			if ok, cerr := ch.IsRecorded(ctx, hashed.MatchKey); cerr == nil && ok {
				return ErrAlreadyRecorded
			}
			return fmt.Errorf("submitting record: %w", err)
		}
		return nil
	})

	switch {
	case err == nil:
		r.logger.Info("handover recorded", "match", f.MatchID, "tx", tx)
		return Result{Success: true, TxRef: tx}
	case errors.Is(err, ErrAlreadyRecorded):
		r.logger.Info("handover already recorded", "match", f.MatchID)
		return Result{Success: true, AlreadyRecorded: true}
	default:
		r.logger.Error("recording handover failed", "match", f.MatchID, "error", err)
		return Result{Error: err.Error()}
	}
}

// Verify reports whether a record exists for the match.
func (r *Recorder) Verify(ctx context.Context, matchID string) (bool, error) {
	var recorded bool
	err := r.do(ctx, "verify", func(ch Chain) error {
		var err error
		recorded, err = ch.IsRecorded(ctx, MatchKey(matchID))
		return err
	})
	return recorded, err
}

// GetRecord returns the on-chain record of a match, or nil.
func (r *Recorder) GetRecord(ctx context.Context, matchID string) (*Record, error) {
	var rec *Record
	err := r.do(ctx, "lookup", func(ch Chain) error {
		var err error
		rec, err = ch.GetRecord(ctx, MatchKey(matchID))
		return err
	})
	return rec, err
}

// do runs fn against the bound chain. Transient failures rebind to the next
// endpoint and retry after a doubling backoff, up to maxRetries times.
func (r *Recorder) do(ctx context.Context, op string, fn func(Chain) error) error {
	delay := r.backoff
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying ledger call", "op", op, "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return &TerminalError{Err: fmt.Errorf("%w (last error: %w)", err, lastErr)}
			}
			delay *= 2
		}

		ch, err := r.conn.Chain(ctx)
		if err == nil {
			err = fn(ch)
			if err == nil {
				return nil
			}
		}

		switch classify(err) {
		case classAlreadyRecorded:
			return ErrAlreadyRecorded
		case classTerminal:
			return &TerminalError{Err: err}
		}
		lastErr = err

		if !errors.Is(err, ErrUnavailable) {
			if rerr := r.conn.Rebind(ctx); rerr != nil {
				lastErr = fmt.Errorf("%w; rebinding: %w", err, rerr)
			}
		}
	}

	return &TransientError{Attempts: r.maxRetries + 1, Err: lastErr}
}
