package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// starterBundle is written by "vigil init" as a working example configuration.
const starterBundle = `# vigil observer bundle
hooks:
  - trigger: orchestrator:complete
    priority: 5

execution:
  mode: parallel_sync
  max_concurrent: 10
  timeout_per_observer: 30
  on_timeout: skip

observers:
  - file: observers/security-auditor.md
    watch:
      - type: files
        paths: ["**/*.py", "**/*.go", "**/*.js", "**/*.ts"]
  - name: conversation-reviewer
    focus: |
      Review the recent conversation for unresolved user requests,
      contradictory instructions given to the agent, and promised work
      that was never delivered.
    watch:
      - type: conversation
        include_tool_calls: false
`

// starterObserver is the example markdown observer definition.
const starterObserver = `---
name: security-auditor
model: claude-sonnet-4
timeout: 45
---
Audit the changed code for security problems: hardcoded credentials,
injection risks, missing input validation, and unsafe use of secrets.
Prefer a few high-confidence findings over an exhaustive list.
`

// newInitCmd creates the "vigil init" subcommand.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the vigil home with a starter bundle",
		Long:  "Creates $VIGIL_HOME (default ~/.vigil) with an example observer\nbundle and observer definition. Existing files are never overwritten.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			if err := paths.EnsureHome(); err != nil {
				return err
			}

			observerPath := filepath.Join(paths.VigilHome, "observers", "security-auditor.md")
			wrote := false
			for _, f := range []struct {
				path, content string
			}{
				{paths.BundlePath, starterBundle},
				{observerPath, starterObserver},
			} {
				created, err := writeIfMissing(f.path, f.content)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", f.path)
					wrote = true
				}
			}
			if !wrote {
				fmt.Fprintln(cmd.OutOrStdout(), "already initialized")
			}
			return nil
		},
	}
}

// writeIfMissing creates the file with content unless it already exists.
func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
