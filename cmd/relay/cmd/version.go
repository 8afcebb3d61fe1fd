package cmd

import (
	"fmt"

	"github.com/nfrund/relay/internal/app"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of relay",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "relay v%s\n", app.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
