package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolselector/internal/tools"
)

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe <name>",
	Short: "Start a tool's server and list the MCP tools it offers",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 30*time.Second, "How long to wait for the server")
}

func runProbe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	t, err := lookup(a, name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	conn, err := tools.NewMCPConnection(ctx, name, t.Config)
	if err != nil {
		return err
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s\n", name, conn.ServerName())

	descs := conn.Descriptions()
	names := conn.ToolNames()
	sort.Strings(names)
	fmt.Fprintf(out, "%d tool(s):\n", len(names))
	for _, n := range names {
		fmt.Fprintf(out, "  %-24s %s\n", n, truncate(descs[n], 60))
	}
	return nil
}
