// Package cli wires the merchload commands.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/merchload/internal/engine"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "merchload",
	Short:   "Constant arrival rate load generator for the merch shop API",
	Version: version,
	Long: `merchload drives the merch shop API at a fixed iteration rate.

Each iteration authenticates a test user, reads its balance and history,
and sometimes transfers coins or buys an item. Iterations start on
schedule regardless of how slow the service is; when no virtual user is
free the iteration is dropped and counted.

Exit codes: 0 on success, 99 when a threshold fails, 1 on any other error.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the merchload version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "merchload %s\n", version)
	},
}

// Execute runs the root command. Threshold failures are returned without
// being printed since the summary already shows them.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil && !errors.Is(err, engine.ErrThresholdsFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(validateCmd)
	RootCmd.AddCommand(mockCmd)
	RootCmd.AddCommand(versionCmd)
}
