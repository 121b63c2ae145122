package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	settingsFlag string
	configFlag   string
	backupFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "toolselector",
	Short: "Toggle MCP tool servers on and off",
	Long: `toolselector enables and disables the MCP servers listed in a Claude Desktop
style configuration file.

Enabled tools live in the "mcpServers" object of the configuration file.
Disabling a tool moves its entry to a backup file next to it, and enabling
it moves the entry back, so no settings are lost.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFlag, "settings", "", "Settings file (default: ./toolselector.yaml or ~/.toolselector/toolselector.yaml)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "MCP configuration file (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&backupFlag, "backup", "", "Backup file for disabled tools (default: <config>.backup)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
