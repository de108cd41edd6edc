package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build metadata",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relayd %s (%s)\n", version, commit)
		},
	}
}
