// Chatwire — persistent gateway connector for event-driven chat bots.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatwire",
	Short: "Chatwire — persistent gateway connector with a local event bus.",
	Long: `Chatwire maintains a persistent websocket session against a chat gateway:
it handshakes, heartbeats, tracks the sequenced event stream, and fans
dispatched events out to subscribed callbacks through a worker pool.
Dropped sessions are re-established with exponential backoff.`,
	RunE:          runConnect, // Default to connect mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(connectCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
