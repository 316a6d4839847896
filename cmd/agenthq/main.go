package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CalvinMagezi/agent-hq-sub000/cmd/agenthq/commands"
	"github.com/CalvinMagezi/agent-hq-sub000/logger"
)

var rootCmd = &cobra.Command{
	Use:   "agenthq",
	Short: "AgentHQ - local agent relay gateway",
	Long: `AgentHQ relay gateway.

A long-running daemon that sits between chat frontends (WhatsApp, Discord,
web, REST) and LLM backend workers operating on a shared file vault. It
exposes one WebSocket endpoint plus a REST surface, multiplexes client
sessions, and fans vault change events out to subscribers.

Examples:
  agenthq serve            # Start the gateway
  agenthq serve --json     # Structured log output
  agenthq version          # Show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			if err := logger.SetDebug(jsonOutput); err != nil {
				return fmt.Errorf("failed to enable debug logging: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Emit JSON log output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

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
