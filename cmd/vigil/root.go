package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"vigil/internal/appversion"
)

// newRootCmd creates the root vigil command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "vigil",
		Short:         "Background observation engine for agent sessions",
		Long:          "vigil runs configured observers against session changes,\ncollecting their findings into a reviewable observation store.",
		Version:       fmt.Sprintf("vigil %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newWatchCmd(),
		newObservationsCmd(),
		newStatusCmd(),
	)

	return cmd
}
