// Package cli provides the command-line interface for the eventmq
// scheduler.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacobdh/eventmq/internal/cli/commands"
	"github.com/jacobdh/eventmq/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "eventmq-scheduler",
	Short: "eventmq scheduler - keeper of time, master of schedules",
	Long: `The eventmq scheduler maintains a durable catalog of interval and
cron schedules and dispatches job requests to an eventmq broker when
their deadlines arrive.`,
	Version: version.Version,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(commands.NewStartCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
