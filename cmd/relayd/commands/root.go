package commands

import (
	"github.com/spf13/cobra"
)

var envFile string

// Execute runs the relayd CLI.
func Execute() error {
	root := &cobra.Command{
		Use:          "relayd",
		Short:        "Store-and-forward relay for end-to-end-encrypted messages",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file before reading config")

	root.AddCommand(serveCmd(), versionCmd())
	return root.Execute()
}
