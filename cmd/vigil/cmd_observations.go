package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vigil/pkg/observation"
)

// newObservationsCmd creates the "vigil observations" command group.
func newObservationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "observations",
		Aliases: []string{"obs"},
		Short:   "Inspect and manage recorded observations",
	}

	cmd.AddCommand(
		newObservationsListCmd(),
		newObservationsAcknowledgeCmd(),
		newObservationsResolveCmd(),
		newObservationsClearCmd(),
	)
	return cmd
}

// withStore opens the session store for one command invocation.
func withStore(fn func(ctx context.Context, store *observation.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
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
		return fn(cmd.Context(), observation.NewStore(db))
	}
}

func newObservationsListCmd() *cobra.Command {
	var (
		statusFilter   string
		severityFilter []string
		observerFilter string
		bySeverity     bool
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List observations",
		Long:  "List observations with optional status, severity, and observer filters.\nOutputs a table with id, severity, status, observer, content, and source.",
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *observation.Store) error {
			opts := observation.ListOpts{
				Observer:       observerFilter,
				SortBySeverity: bySeverity,
				Limit:          limit,
			}
			if statusFilter != "" {
				status, err := observation.ParseStatus(statusFilter)
				if err != nil {
					return err
				}
				opts.Status = status
			}
			for _, s := range severityFilter {
				sev, err := observation.ParseSeverity(s)
				if err != nil {
					return err
				}
				opts.Severities = append(opts.Severities, sev)
			}

			results, err := store.List(ctx, opts)
			if err != nil {
				return fmt.Errorf("observations list: %w", err)
			}
			fmt.Fprint(c.OutOrStdout(), formatObservationsTable(results))
			return nil
		})(c, args)
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "filter by status (open, acknowledged, resolved)")
	cmd.Flags().StringSliceVar(&severityFilter, "severity", nil, "filter by severity (repeatable)")
	cmd.Flags().StringVar(&observerFilter, "observer", "", "filter by observer name")
	cmd.Flags().BoolVar(&bySeverity, "by-severity", false, "sort most urgent first")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to show (0 = all)")
	return cmd
}

func newObservationsAcknowledgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "acknowledge <id>",
		Aliases: []string{"ack"},
		Short:   "Mark an observation as acknowledged",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store *observation.Store) error {
				id, err := expandID(ctx, store, args[0])
				if err != nil {
					return err
				}
				obs, err := store.Acknowledge(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "acknowledged %s: %s\n", shortID(obs.ID), truncateContent(obs.Content, 60))
				return nil
			})(cmd, args)
		},
	}
}

func newObservationsResolveCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an observation as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store *observation.Store) error {
				id, err := expandID(ctx, store, args[0])
				if err != nil {
					return err
				}
				obs, err := store.Resolve(ctx, id, note)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "resolved %s: %s\n", shortID(obs.ID), truncateContent(obs.Content, 60))
				return nil
			})(c, args)
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	return cmd
}

func newObservationsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all resolved observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store *observation.Store) error {
				n, err := store.ClearResolved(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d resolved observation(s)\n", n)
				return nil
			})(cmd, args)
		},
	}
}

// expandID resolves a possibly-truncated observation id to the full uuid. An
// exact id passes through; a prefix must match exactly one observation.
func expandID(ctx context.Context, store *observation.Store, id string) (string, error) {
	if _, err := store.Get(ctx, id); err == nil {
		return id, nil
	}

	all, err := store.List(ctx, observation.ListOpts{})
	if err != nil {
		return "", fmt.Errorf("expand id: %w", err)
	}
	var matches []string
	for _, o := range all {
		if strings.HasPrefix(o.ID, id) {
			matches = append(matches, o.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", &observation.NotFoundError{ID: id}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d matches)", id, len(matches))
	}
}
