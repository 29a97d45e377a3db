package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "taskmesh",
	Short: "Multi-agent task orchestration engine",
	Long: `TaskMesh runs an objective through a coordinator agent that breaks it
into bounded tasks, launches them as parallel worker batches, and collects
their findings into a shared versioned context store.

Workers come in four profiles: explorer and reviewer (read-only), coder and
test_writer (write-capable). Every worker runs under a turn budget and ends
with a report; the coordinator integrates the reported contexts and decides
what to launch next.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, built-in defaults apply)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
