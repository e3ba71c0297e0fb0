// Package commands wires the CLI: the long-running serve command plus
// a few one-shot helpers around it.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tli-tracker",
	Short: "Farm tracker for Torchlight: Infinite",
	Long: `tli-tracker tails the Torchlight: Infinite game log, tracks farm
sessions (drops, maps, expenses, profit) and serves the numbers to
overlay UIs over HTTP and WebSocket.`,
}

// SetVersion sets the build information stamped by the linker.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(findLogCmd)
	rootCmd.AddCommand(genTokenCmd)
	rootCmd.AddCommand(versionCmd)
}
