package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolselector/internal/mcpconfig"
	"github.com/michaelbrown/toolselector/internal/tools"
)

var (
	listAll     bool
	listState   string
	forceFlag   bool
	commandFlag string
	argFlags    []string
	envFlags    []string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tools and whether they are enabled",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a tool's configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var enableCmd = &cobra.Command{
	Use:   "enable <name>...",
	Short: "Enable tools, restoring them from the backup file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnable,
}

var disableCmd = &cobra.Command{
	Use:   "disable <name>...",
	Short: "Disable tools, moving them to the backup file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDisable,
}

var removeCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a tool (an enabled tool is kept in the backup file)",
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new enabled tool",
	Long: `Add a new enabled tool.

Examples:
  toolselector add fetch --command uvx --arg mcp-server-fetch
  toolselector add github --command npx --arg -y --arg @modelcontextprotocol/server-github \
      --env GITHUB_TOKEN='${GITHUB_TOKEN}'`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var updateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Change a tool's command, args or env",
	Long: `Change a tool's configuration. Only the given flags are replaced; --arg and
--env replace the whole list when present.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(listCmd, showCmd, enableCmd, disableCmd, removeCmd, addCmd, updateCmd)

	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include tools that exist only in the backup file")
	listCmd.Flags().StringVar(&listState, "state", "", "Filter by state (enabled, disabled)")

	removeCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")

	for _, c := range []*cobra.Command{addCmd, updateCmd} {
		c.Flags().StringVar(&commandFlag, "command", "", "Executable that starts the MCP server")
		c.Flags().StringArrayVar(&argFlags, "arg", nil, "Command argument (repeatable)")
		c.Flags().StringArrayVar(&envFlags, "env", nil, "Environment variable KEY=VALUE (repeatable)")
	}
	addCmd.MarkFlagRequired("command")
}

// listed returns registry tools followed by backup-only tools when all is set.
func listed(cmd *cobra.Command, a *app, all bool) []tools.Tool {
	ts := a.registry.Tools()
	if all {
		only, warnings := a.registry.BackupOnly()
		printWarnings(cmd.ErrOrStderr(), warnings)
		ts = append(ts, only...)
	}
	return ts
}

func runList(cmd *cobra.Command, args []string) error {
	switch listState {
	case "", "enabled", "disabled":
	default:
		return fmt.Errorf("unknown state %q", listState)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ts := listed(cmd, a, listAll || listState == "disabled")

	out := cmd.OutOrStdout()
	var rows []tools.Tool
	for _, t := range ts {
		if listState != "" && status(t) != listState {
			continue
		}
		rows = append(rows, t)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No tools found.")
		return nil
	}

	fmt.Fprintf(out, "%-24s %-9s %s\n", "NAME", "STATUS", "COMMAND")
	fmt.Fprintln(out, strings.Repeat("─", 72))
	for _, t := range rows {
		line := strings.Join(append([]string{t.Config.Command}, t.Config.Args...), " ")
		fmt.Fprintf(out, "%-24s %-9s %s\n", truncate(t.Name, 24), status(t), truncate(line, 38))
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
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

	doc := mcpconfig.NewDocument()
	doc.Servers.Set(t.Name, t.Config)
	data, err := mcpconfig.Encode(doc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:   %s\n", t.Name)
	fmt.Fprintf(out, "Status: %s\n\n", status(t))
	fmt.Fprint(out, string(data))
	return nil
}

func runEnable(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var failed []string
	for _, name := range args {
		if err := report(cmd, a.registry.Enable(name), "Enabled "+name); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("could not enable: %s", strings.Join(failed, ", "))
	}
	return nil
}

func runDisable(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var failed []string
	for _, name := range args {
		if err := report(cmd, a.registry.Disable(name), "Disabled "+name); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("could not disable: %s", strings.Join(failed, ", "))
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	if _, ok := a.registry.Tool(name); !ok {
		return fmt.Errorf("%w: %s", tools.ErrToolNotFound, name)
	}

	if !forceFlag {
		fmt.Fprintf(cmd.OutOrStdout(), "Remove tool %q? [y/N] ", name)
		confirm, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(confirm)) != "y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	return report(cmd, a.registry.Remove(name), "Removed "+name)
}

func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg := mcpconfig.ToolConfig{Command: commandFlag, Args: argFlags}
	if len(envFlags) > 0 {
		env, err := parseEnv(envFlags)
		if err != nil {
			return err
		}
		cfg.Env = env
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return report(cmd, a.registry.Add(args[0], cfg), "Added "+args[0])
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	t, ok := a.registry.Tool(name)
	if !ok {
		return fmt.Errorf("%w: %s", tools.ErrToolNotFound, name)
	}

	cfg := t.Config
	flags := cmd.Flags()
	if flags.Changed("command") {
		cfg.Command = commandFlag
	}
	if flags.Changed("arg") {
		cfg.Args = argFlags
	}
	if flags.Changed("env") {
		env, err := parseEnv(envFlags)
		if err != nil {
			return err
		}
		cfg.Env = env
	}

	return report(cmd, a.registry.Update(name, cfg), "Updated "+name)
}
