package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidebell/tidebell/cmd/tidebell/commands"
	"github.com/tidebell/tidebell/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tidebell",
	Short: "tidebell - dynamic job scheduler with live delivery",
	Long: `tidebell schedules recurring jobs from cron expressions, survives
restarts by recovering persisted schedules, and pushes notifications to
connected websocket clients through a pub/sub delivery bridge.

Available commands:
  serve  - Start the tidebell server (scheduler + delivery bridge + HTTP API)
  config - Show the resolved configuration

Examples:
  tidebell serve                # Start with config from tidebell.toml / env
  tidebell serve --json-logs    # Structured log output
  tidebell config               # Print the effective configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit JSON log output instead of console format")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
