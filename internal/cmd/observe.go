package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(observeCmd)
}

var observeCmd = &cobra.Command{
	Use:     "observe",
	GroupID: GroupDiag,
	Short:   "Observe the fleet: run the dashboard backend, or manage log sources",
	Long: `Observe the fleet of rigs, agents, beads, and mail, or configure the
runtime log sources this command also manages.

With no subcommand, prints a snapshot table of the running observability
server's current world model (see "gt observe serve"). Use "serve" to
start the backend that polls the fleet, derives events, evaluates alert
rules, and streams updates to connected dashboard clients; "watch" and
"json" attach to a running server as a client. "add", "list", "remove",
"status", and "tail" instead manage this workspace's log-tailing sources.`,
	RunE: runObserveDefault,
}

var observeServerAddr string

func init() {
	observeCmd.PersistentFlags().StringVar(&observeServerAddr, "addr", "http://localhost:8080", "observability server base URL")
}
