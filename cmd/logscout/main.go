// Package main provides the logscout CLI: ask questions about an IP,
// run structured retrievals and serve the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "logscout",
		Short: "logscout - IP log retrieval across Elasticsearch clusters",
		Long: `logscout answers questions such as "what did 10.0.0.5 do on 2025-10-01"
by picking the most relevant log sources, building a time-bounded IP query
for the cluster that owns each source and summarizing the records found.

Run 'logscout serve' to start the HTTP API.
Run 'logscout ask "<question>"' for a one-shot answer.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		askCmd(),
		resolveCmd(),
		retrieveCmd(),
		sourcesCmd(),
		routeCmd(),
		eventsCmd(),
		evalCmd(),
		serveCmd(),
		versionCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "logscout %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
