package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tourbook/risk-gate/internal/domain"
)

func reviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the manual review queue",
	}
	cmd.AddCommand(reviewListCmd(a))
	cmd.AddCommand(reviewDecideCmd(a))
	cmd.AddCommand(reviewHistoryCmd(a))
	cmd.AddCommand(reviewCleanupCmd(a))
	return cmd
}

func reviewListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending reviews, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.reviews.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "No pending reviews")
					return
				}
				printEntries(w, entries, false)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries (0 = all)")
	return cmd
}

func reviewDecideCmd(a *app) *cobra.Command {
	var notes, by string
	cmd := &cobra.Command{
		Use:   "decide <id> approve|reject",
		Short: "Approve or reject a pending review",
		Long: `Approve or reject a pending review by its ID. Rejecting blacklists the
attempt's email and, when present, its IP, with the notes as the reason.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision := domain.Decision(strings.ToLower(args[1]))
			e, err := a.reviews.Decide(cmd.Context(), args[0], decision, notes, by)
			if errors.Is(err, domain.ErrReviewConflict) {
				return fmt.Errorf("review %s is not pending; it was already decided or never existed", args[0])
			}
			if err != nil && e == nil {
				return err
			}
			if emitErr := a.emit(cmd.OutOrStdout(), e, func(w io.Writer) {
				fmt.Fprintf(w, "Review %s: %s by %s\n", e.ID, e.Decision, e.ReviewedBy)
			}); emitErr != nil {
				return emitErr
			}
			// Decision logged but a ban write failed.
			return err
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Reviewer notes; used as the blacklist reason on reject")
	cmd.Flags().StringVar(&by, "by", "", "Reviewer making the decision")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func reviewHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show decided reviews, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.reviews.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), entries, func(w io.Writer) {
				printEntries(w, entries, true)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries (0 = all)")
	return cmd
}

func reviewCleanupCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge decided reviews older than a number of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.reviews.Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d decisions older than %d days\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "older-than-days", 30, "Purge decisions reviewed before this many days ago")
	return cmd
}

func printEntries(w io.Writer, entries []*domain.ReviewEntry, decided bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if decided {
		fmt.Fprintln(tw, "ID\tEMAIL\tSCORE\tDECISION\tBY\tREVIEWED\tNOTES")
	} else {
		fmt.Fprintln(tw, "ID\tEMAIL\tTOUR\tAMOUNT\tSCORE\tFACTORS\tQUEUED")
	}
	for _, e := range entries {
		if decided {
			reviewed := ""
			if e.ReviewedAt != nil {
				reviewed = e.ReviewedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				e.ID, e.Attempt.Email, e.Score.Score, e.Decision, e.ReviewedBy, reviewed, e.Notes)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			e.ID, e.Attempt.Email, e.Attempt.TourID, e.Attempt.Amount, e.Score.Score,
			strings.Join(e.Score.Factors.Triggered(), ","), e.QueuedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
