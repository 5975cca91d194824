// Package commands holds the norbertd CLI's subcommands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepaksubu/norbert/logger"
)

var RootCmd = &cobra.Command{
	Use:   "norbertd",
	Short: "norbertd - partitioned RPC server daemon",
	Long: `norbertd hosts the server-side core of a partitioned RPC framework:
a bounded worker pool dispatching length-framed requests to registered
handlers, with cluster-aware availability and partition-routed load
balancing for peers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		level := logger.VerbosityToLevel(verbosity)
		if err := logger.InitializeWithLevel(jsonLogs, level); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

var jsonLogs bool

func init() {
	RootCmd.PersistentFlags().CountP("verbose", "v", "increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	RootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of console output")

	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(ConfigCmd)
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
