// Package cli implements the falcon command-line client for a running
// connector server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var host string

	rootCmd := &cobra.Command{
		Use:           "falcon",
		Short:         "Plotly database connector CLI",
		Long:          "Command-line interface for a running Plotly database connector.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("FALCON_HOST"); v != "" {
					host = v
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:9494", "Connector server base URL")

	rootCmd.AddCommand(newPingCmd(&host))
	rootCmd.AddCommand(newQueriesCmd(&host))

	return rootCmd
}

func newPingCmd(host *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is up",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Message string `json:"message"`
			}
			if err := newClient(*host).call("GET", "/ping", nil, &out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Message)
			return nil
		},
	}
}
