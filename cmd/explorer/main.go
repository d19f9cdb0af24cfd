package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coreworld/explorer/cmd/explorer/commands"
)

var rootCmd = &cobra.Command{
	Use:   "explorer",
	Short: "A decentralized virtual-world client runtime",
	Long: `explorer runs the scene lifecycle, CRDT scene/renderer protocol, and
networked presence layer for a single session against a realm.

Available commands:
  run     - boot the client against a realm
  login   - produce and cache a previous-login record
  version - show build information`,
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Verbosity count (-v, -vv, -vvv); parsed but not read, the log level stays at info")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.LoginCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
