// Command outcomes settles trading setups against stored price bars.
//
// Usage:
//
//	outcomes evaluate [--dry-run] [--days-back 30] [--limit 200] [--asset GOLD]
//	outcomes serve
//	outcomes migrate
//	outcomes stats [--days 30]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	fixtures   string
	demo       bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "outcomes",
		Short:         "Outcome evaluation and batch settlement engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&flags.fixtures, "fixtures", "", "JSON fixture file loaded into the stores at startup")
	rootCmd.PersistentFlags().BoolVar(&flags.demo, "demo", false, "Load built-in demo snapshots and bars at startup")

	rootCmd.AddCommand(
		newEvaluateCmd(flags),
		newServeCmd(flags),
		newMigrateCmd(flags),
		newStatsCmd(flags),
	)
	return rootCmd
}
