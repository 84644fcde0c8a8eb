package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/mrnag/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the mrnag version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mrnag %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version.Version
}
