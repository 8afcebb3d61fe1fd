package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Real-time presence and direct message relay",
	Long: `relay accepts authenticated WebSocket connections, tracks who is online and
relays direct messages between users, storing each one before it is delivered.

Configuration is read from the environment and an optional .env file.

Use "relay [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
