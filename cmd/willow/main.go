// Command willow is a CLI for running a Willow-protocol synchronization
// session: hosting entries in a SQLite store, serving reconciliation
// sessions over WebSocket, and dialing out to reconcile against a peer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meadowlark-sync/willow/cmd/willow/commands"
	"github.com/meadowlark-sync/willow/logger"
)

var verbosity int

var rootCmd = &cobra.Command{
	Use:   "willow",
	Short: "willow - Willow protocol synchronization session core",
	Long: `willow - a range-based set reconciliation sync session.

willow hosts a namespace of entries in a local SQLite store and
synchronizes it against a peer over WebSocket using Meadowcap
capabilities for authorisation and range-based fingerprint exchange to
minimize the data transferred.

Examples:
  willow keygen                       # generate a user identity key
  willow namespace create             # generate a namespace key
  willow serve --listen :7077         # host a store and accept sync sessions
  willow sync ws://peer:7077/sync     # reconcile against a peer
  willow store stats                  # show local store statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.InitializeAt(logger.VerbosityToLevel(verbosity))
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase output verbosity (repeat for more detail)")

	rootCmd.AddCommand(commands.VersionCmd)
	rootCmd.AddCommand(commands.KeygenCmd)
	rootCmd.AddCommand(commands.NamespaceCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.SyncCmd)
	rootCmd.AddCommand(commands.StoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
