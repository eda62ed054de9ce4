package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rogermt/forgesyte-sub004/cmd/forgesyte/commands"
	"github.com/rogermt/forgesyte-sub004/logger"
)

var rootCmd = &cobra.Command{
	Use:   "forgesyte",
	Short: "Forgesyte - media analysis job service",
	Long: `Forgesyte - durable media analysis job dispatch.

Forgesyte accepts image and video uploads over HTTP, queues analysis jobs
in SQLite, and executes plugin tools against them with a single background
worker. Job state is observable by polling or WebSocket.

Examples:
  forgesyte serve                      # Start the server and worker
  forgesyte serve --config ./fs.toml   # Start with an explicit config file
  forgesyte version                    # Show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
