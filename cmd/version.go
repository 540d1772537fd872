package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the secema release.
const Version = "0.3.0"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of secema",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "secema v%s\n", Version)
	},
}
