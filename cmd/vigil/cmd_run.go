package main

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"vigil/pkg/bundle"
	"vigil/pkg/dispatch"
	"vigil/pkg/hooks"
	"vigil/pkg/session"
)

// runConfig holds flags for the run command.
type runConfig struct {
	bundlePath string
	transcript string
	workdir    string
	event      string
}

// newRunCmd creates the "vigil run" subcommand.
func newRunCmd() *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fire one orchestration cycle",
		Long:  "Detects changed watch targets, runs matched observers,\nand reconciles their findings into the session store.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, db, err := buildRunner(&cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ev, err := buildEvent(&cfg)
			if err != nil {
				return err
			}
			if !runner.Handles(ev.Name) {
				fmt.Fprintf(cmd.OutOrStdout(), "no hook listens for %s\n", ev.Name)
				return nil
			}

			summary, err := runner.Run(cmd.Context(), ev)
			if summary != nil {
				fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary))
			}
			return err
		},
	}

	addRunFlags(cmd, &cfg)
	return cmd
}

// addRunFlags registers the flags shared by run and watch.
func addRunFlags(cmd *cobra.Command, cfg *runConfig) {
	cmd.Flags().StringVar(&cfg.bundlePath, "bundle", "", "observer bundle config (default $VIGIL_HOME/observers.yaml)")
	cmd.Flags().StringVar(&cfg.transcript, "transcript", "", "session transcript JSONL file")
	cmd.Flags().StringVarP(&cfg.workdir, "workdir", "C", ".", "working tree to inspect")
	cmd.Flags().StringVar(&cfg.event, "event", bundle.DefaultTrigger, "trigger event name")
}

// buildRunner loads configuration and wires a cycle runner over the session
// database. The caller owns closing the returned db handle.
func buildRunner(cfg *runConfig) (*hooks.Runner, *sql.DB, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve paths: %w", err)
	}
	if err := paths.EnsureHome(); err != nil {
		return nil, nil, err
	}

	bundlePath := cfg.bundlePath
	if bundlePath == "" {
		bundlePath = paths.BundlePath
	}
	bcfg, err := bundle.Load(bundlePath)
	if err != nil {
		return nil, nil, err
	}
	if err := bcfg.ResolveObservers(filepath.Dir(bundlePath)); err != nil {
		return nil, nil, err
	}
	if err := bundle.ApplyLocalOverrides(bcfg, cfg.workdir); err != nil {
		return nil, nil, err
	}

	db, err := openSessionDB(paths.SessionDBPath)
	if err != nil {
		return nil, nil, err
	}

	invoker := &dispatch.ClaudeInvoker{WorkDir: cfg.workdir}
	return hooks.NewRunner(bcfg, db, invoker), db, nil
}

// buildEvent assembles the trigger event from flags, reading the transcript
// when one was given.
func buildEvent(cfg *runConfig) (hooks.Event, error) {
	ev := hooks.Event{Name: cfg.event, WorkDir: cfg.workdir}
	if cfg.transcript != "" {
		messages, err := session.ReadTranscript(cfg.transcript)
		if err != nil {
			return hooks.Event{}, err
		}
		ev.Messages = messages
	}
	return ev, nil
}
