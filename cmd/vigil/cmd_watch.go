package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"vigil/pkg/hooks"
)

// Debounce window for filesystem event bursts. A save typically emits several
// events for the same file; one cycle covers them all.
const debounceDuration = 500 * time.Millisecond

// watchConfig holds flags for the watch command.
type watchConfig struct {
	runConfig
	interval time.Duration
}

// newWatchCmd creates the "vigil watch" subcommand.
func newWatchCmd() *cobra.Command {
	var cfg watchConfig

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run cycles continuously on filesystem changes",
		Long:  "Watches the working tree with fsnotify and fires a cycle on each\ndebounced change, plus a fallback interval tick. Runs until interrupted.",
		RunE: func(c *cobra.Command, _ []string) error {
			runner, db, err := buildRunner(&cfg.runConfig)
			if err != nil {
				return err
			}
			defer db.Close()

			return watchLoop(c.Context(), c.OutOrStdout(), runner, &cfg)
		},
	}

	addRunFlags(cmd, &cfg.runConfig)
	cmd.Flags().DurationVar(&cfg.interval, "interval", 2*time.Minute, "fallback cycle interval when no fs events arrive")
	return cmd
}

// watchLoop blocks running debounced cycles until ctx is cancelled. A nil
// watcher (unsupported filesystem) degrades to interval-only operation.
func watchLoop(ctx context.Context, out io.Writer, runner *hooks.Runner, cfg *watchConfig) error {
	watcher := initWatcher(cfg.workdir)
	if watcher != nil {
		defer watcher.Close()
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	// Nil channels block forever in select, which is exactly the degraded
	// interval-only behavior when no watcher could be set up.
	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			resetDebounce(debounce)
		case err, ok := <-errs:
			if ok {
				log.Warn().Err(err).Msg("fsnotify error")
			}
		case <-debounce.C:
			fireCycle(ctx, out, runner, cfg)
		case <-ticker.C:
			fireCycle(ctx, out, runner, cfg)
		}
	}
}

// fireCycle runs one trigger cycle, logging rather than aborting on error so
// the watch loop survives transient failures.
func fireCycle(ctx context.Context, out io.Writer, runner *hooks.Runner, cfg *watchConfig) {
	ev, err := buildEvent(&cfg.runConfig)
	if err != nil {
		log.Error().Err(err).Msg("build event failed")
		return
	}
	summary, err := runner.Run(ctx, ev)
	if err != nil {
		log.Error().Err(err).Msg("cycle failed")
	}
	if summary != nil && (len(summary.Created) > 0 || len(summary.ResolvedIDs) > 0 || len(summary.Failures()) > 0) {
		fmt.Fprint(out, renderSummary(summary))
	}
}

// initWatcher creates a recursive watcher over the working tree. Returns nil
// when fsnotify is unavailable; the caller falls back to interval ticks.
func initWatcher(root string) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("fsnotify unavailable, interval-only mode")
		return nil
	}

	// fsnotify does not recurse; register each directory, skipping the same
	// trees the change detector skips.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		switch d.Name() {
		case ".git", ".vigil", "node_modules":
			if path != root {
				return filepath.SkipDir
			}
		}
		if err := watcher.Add(path); err != nil {
			log.Debug().Str("path", path).Err(err).Msg("watch add failed")
		}
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		log.Warn().Err(err).Msg("watch setup failed, interval-only mode")
		return nil
	}
	return watcher
}

// resetDebounce restarts the debounce window, draining a pending fire.
func resetDebounce(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
