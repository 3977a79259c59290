package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func blacklistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage blacklisted emails and IP addresses",
	}
	cmd.AddCommand(blacklistAddCmd(a))
	cmd.AddCommand(blacklistRemoveCmd(a))
	cmd.AddCommand(blacklistListCmd(a))
	cmd.AddCommand(blacklistHistoryCmd(a))
	cmd.AddCommand(blacklistCleanupCmd(a))
	return cmd
}

func blacklistAddCmd(a *app) *cobra.Command {
	var reason, by string
	var days int
	cmd := &cobra.Command{
		Use:   "add <email|ip>",
		Short: "Blacklist an email address or IP",
		Long: `Blacklist an email address or IP. The identifier type is detected:
anything containing "@" is an email, anything that parses as an IP is an IP.
Adding an identifier that is already blacklisted replaces its entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.blacklist.Add(cmd.Context(), args[0], reason, days, by)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), e, func(w io.Writer) {
				fmt.Fprintf(w, "Blacklisted %s %s (%s)\n", e.Type, e.Identifier, expiry(e.ExpiresAt))
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reason recorded on the entry")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "Expire after this many days (0 = permanent)")
	cmd.Flags().StringVar(&by, "by", "", "Operator adding the entry")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func blacklistRemoveCmd(a *app) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "remove <email|ip>",
		Short: "Remove an email address or IP from the blacklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.blacklist.Remove(cmd.Context(), args[0], by); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "Operator removing the entry")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func blacklistListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live blacklist entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.blacklist.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "Blacklist is empty")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tIDENTIFIER\tADDED BY\tADDED\tEXPIRES\tREASON")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						e.Type, e.Identifier, e.AddedBy, e.AddedAt.Format(time.RFC3339), expiry(e.ExpiresAt), e.Reason)
				}
				_ = tw.Flush()
			})
		},
	}
}

func blacklistHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the blacklist audit log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a.blacklist.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), events, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "AT\tACTION\tTYPE\tIDENTIFIER\tACTOR\tREASON")
				for _, ev := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						ev.At.Format(time.RFC3339), ev.Action, ev.Type, ev.Identifier, ev.Actor, ev.Reason)
				}
				_ = tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum events (0 = all)")
	return cmd
}

func blacklistCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired blacklist entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.blacklist.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries\n", n)
			return nil
		},
	}
}

func expiry(t *time.Time) string {
	if t == nil {
		return "permanent"
	}
	return "until " + t.Format(time.RFC3339)
}
