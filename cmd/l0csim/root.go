package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "l0csim",
	Short: "Cycle-driven model of a non-blocking, fully-associative L0 cache.",
	Long: `l0csim runs the L0 cache controller model against randomized ` +
		`requestors and an out-of-order memory, checks every response with a ` +
		`scoreboard and prints a report.`,
	SilenceUsage: true,
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}

	return 0
}
