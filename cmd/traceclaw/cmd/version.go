package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the traceclaw version",
	Args:  cobra.NoArgs,
	// Printing the version must not depend on a valid configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "traceclaw %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
