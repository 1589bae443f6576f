// Package cli implements the nursery command: running the feature suite and
// serving the twin application.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/kuitang/nursery-suite/internal/obs"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	LogLevel string
}

// NewRootCommand creates the nursery command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nursery",
		Short: "End-to-end test suite for the plant nursery application",
		Long: `nursery runs Gherkin feature files against the plant nursery API and UI,
and can serve an in-memory twin of the application to run them against.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			obs.Init()
			if opts.LogLevel != "" {
				obs.SetLevel(obs.ParseLevel(opts.LogLevel))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); defaults to NURSERY_LOG_LEVEL")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTwinCommand(opts))

	return cmd
}
