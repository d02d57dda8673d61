package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/match"
	"github.com/erazemk/najdeno/internal/model"
)

var matchCmd = &cobra.Command{
	Use:   "match <item-id>",
	Short: "Run a matching pass for a pending item",
	Long: `Score the pending items of the opposite type against the given item and
pair it with the best candidate above the threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[0])
		}
		return runWithServices(cmd, func(ctx context.Context, s *services) error {
			result, err := s.matcher.Run(ctx, id)
			if err != nil {
				return err
			}
			printRunResult(cmd.OutOrStdout(), result)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}

var signalOrder = []string{
	model.SignalSemantic,
	model.SignalColor,
	model.SignalLocation,
	model.SignalTime,
	model.SignalImage,
}

func printRunResult(w io.Writer, r *match.RunResult) {
	if len(r.Candidates) == 0 {
		fmt.Fprintln(w, "No candidates above the threshold.")
		return
	}

	fmt.Fprintf(w, "%-8s %-32s %7s", "ITEM", "NAME", "SCORE")
	for _, s := range signalOrder {
		fmt.Fprintf(w, " %9s", s)
	}
	fmt.Fprintln(w)
	for _, c := range r.Candidates {
		fmt.Fprintf(w, "%-8d %-32.32s %7.2f", c.Item.ID, c.Item.Name, c.Score)
		for _, s := range signalOrder {
			if v, ok := c.Breakdown[s]; ok {
				fmt.Fprintf(w, " %9.1f", v)
			} else {
				fmt.Fprintf(w, " %9s", "-")
			}
		}
		fmt.Fprintln(w)
	}

	if r.Match != nil {
		fmt.Fprintf(w, "\nMatched: %s (lost %d, found %d, score %.2f)\n",
			r.Match.ID, r.Match.LostItemID, r.Match.FoundItemID, r.Match.Score)
	} else {
		fmt.Fprintln(w, "\nNo candidate could be paired.")
	}
}
