package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/handover"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

var errLedgerDisabled = errors.New("ledger recording is disabled, set ledger.endpoints")

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and repair ledger records of completed handovers",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify <match-id>",
	Short: "Check whether a match's handover is recorded on the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithServices(cmd, func(ctx context.Context, s *services) error {
			if s.recorder == nil {
				return errLedgerDisabled
			}
			w := cmd.OutOrStdout()

			recorded, err := s.recorder.Verify(ctx, args[0])
			if err != nil {
				return err
			}
			if !recorded {
				fmt.Fprintf(w, "Match %s is not recorded.\n", args[0])
				return nil
			}

			rec, err := s.recorder.GetRecord(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Match %s is recorded.\n", args[0])
			fmt.Fprintf(w, "  match key:    %s\n", rec.MatchKey.Hex())
			fmt.Fprintf(w, "  details:      %s\n", rec.Details.Hex())
			fmt.Fprintf(w, "  completed at: %s\n", rec.CompletedAt.UTC().Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(w, "  recorded at:  %s\n", rec.RecordedAt.UTC().Format("2006-01-02 15:04:05 MST"))
			return nil
		})
	},
}

var ledgerReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Retry ledger writes of handovers that are pending or failed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithServices(cmd, func(ctx context.Context, s *services) error {
			if s.recorder == nil {
				return errLedgerDisabled
			}
			recorded, failed, err := reconcile(ctx, s)
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d, failed %d.\n", recorded, failed)
			return err
		})
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerVerifyCmd, ledgerReconcileCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func reconcile(ctx context.Context, s *services) (recorded, failed int, err error) {
	for _, status := range []string{model.LedgerStatusFailed, model.LedgerStatusPending} {
		handovers, err := store.ListHandoversByLedgerStatus(ctx, s.db, status)
		if err != nil {
			return recorded, failed, err
		}
		for i := range handovers {
			if err := ctx.Err(); err != nil {
				return recorded, failed, err
			}
			h := &handovers[i]
			res := handover.RecordHandover(ctx, s.db, s.recorder, h, slog.Default())
			if res.Success {
				recorded++
				slog.Info("handover recorded", "match", h.MatchID, "tx", res.TxRef, "already_recorded", res.AlreadyRecorded)
			} else {
				failed++
				slog.Warn("handover not recorded", "match", h.MatchID, "error", res.Error)
			}
		}
	}
	return recorded, failed, nil
}
