package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolselector/internal/storage"
	"github.com/michaelbrown/toolselector/internal/storage/sqlite"
)

var (
	historyLimit  int
	historyAction string
	historyTool   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent changes",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Max events to show")
	historyCmd.Flags().StringVar(&historyAction, "action", "", "Filter by action (enable, disable, add, ...)")
	historyCmd.Flags().StringVar(&historyTool, "tool", "", "Filter by tool name")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	events, err := store.List(context.Background(), storage.ListOptions{
		Action: historyAction,
		Tool:   historyTool,
		Limit:  historyLimit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No history yet.")
		return nil
	}

	fmt.Fprintf(out, "%-10s %-8s %-4s %-30s %s\n", "WHEN", "ACTION", "OK", "TOOLS", "MESSAGE")
	fmt.Fprintln(out, strings.Repeat("─", 80))
	for _, e := range events {
		ok := "yes"
		if !e.OK {
			ok = "no"
		}
		fmt.Fprintf(out, "%-10s %-8s %-4s %-30s %s\n",
			timeAgo(e.CreatedAt), e.Action, ok, truncate(strings.Join(e.Tools, ","), 30), e.Message)
	}
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
