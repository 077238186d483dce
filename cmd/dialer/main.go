// Command dialer runs the outbound call orchestration engine.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "dialer",
	Short:         "Outbound campaign dialer",
	Long:          "Paces campaign leads onto the call-control platform, tracks call outcomes and connects answered calls to agents.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
