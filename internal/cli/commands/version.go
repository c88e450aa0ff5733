package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacobdh/eventmq/internal/version"
)

// NewVersionCommand creates the version subcommand.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "eventmq-scheduler %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.BuildDate)
		},
	}
}
