package cmd

import (
	"fmt"
	"os"

	"echofm/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "echofm",
	Short: "echofm is a music streaming service with paid subscriptions.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
