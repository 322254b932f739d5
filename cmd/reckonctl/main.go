package main

import (
	"fmt"
	"os"

	"github.com/danmuck/reckoning/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "reckonctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reckonctl",
		Short: "Run and probe reckoning realm servers",
		Long: `reckonctl runs a realm server and talks to one over the realm wire protocol.

Examples:
  reckonctl serve --config realm.toml
  reckonctl probe --addr 127.0.0.1:7400 --moves 5
  reckonctl config default --out realm.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		probeCmd(),
		configCmd(),
		versionCmd(),
	)
	return rootCmd
}
