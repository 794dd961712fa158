package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "codesync",
		Short: "Real-time collaborative document synchronization relay",
		Long: `CodeSync relays conflict-free document updates and presence
between editor clients connected to shared rooms.

Clients connect over WebSocket to ws://host:port/<roomId> and exchange
binary sync and awareness messages; the relay keeps every member of a
room convergent without a central lock across rooms.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// versionCmd prints build information.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("codesync %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
