package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vigil/pkg/eventlog"
	"vigil/pkg/observation"
)

// newStatusCmd creates the "vigil status" subcommand.
func newStatusCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session observation state",
		Long:  "Displays open observation counts by severity and the most\nrecent cycle events from the session event log.",
		RunE: func(c *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			if err := paths.EnsureHome(); err != nil {
				return err
			}
			db, err := openSessionDB(paths.SessionDBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := c.Context()
			w := c.OutOrStdout()

			if err := printCounts(ctx, w, observation.NewStore(db)); err != nil {
				return err
			}
			return printRecentEvents(ctx, w, eventlog.NewLog(db), tail)
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 10, "number of recent events to show")
	return cmd
}

func printCounts(ctx context.Context, w io.Writer, store *observation.Store) error {
	byStatus, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "observations: %d open, %d acknowledged, %d resolved\n",
		byStatus[observation.StatusOpen],
		byStatus[observation.StatusAcknowledged],
		byStatus[observation.StatusResolved],
	)

	open, err := store.CountBySeverity(ctx, observation.StatusOpen)
	if err != nil {
		return err
	}
	for _, sev := range observation.Severities {
		if n := open[sev]; n > 0 {
			fmt.Fprintf(w, "  %s: %d open\n", styledSeverity(sev), n)
		}
	}
	return nil
}

func printRecentEvents(ctx context.Context, w io.Writer, log *eventlog.Log, tail int) error {
	events, err := log.Query(ctx, eventlog.QueryOpts{Limit: tail})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no cycles recorded")
		return nil
	}

	fmt.Fprintln(w, "\nrecent events:")
	for _, e := range events {
		line := fmt.Sprintf("  %s  %-18s", e.CreatedAt.Local().Format(time.TimeOnly), e.Type)
		if e.Observer != "" {
			line += " " + e.Observer
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
