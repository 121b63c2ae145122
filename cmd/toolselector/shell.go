package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolselector/internal/tools"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell",
	Long: `Start an interactive shell on one loaded configuration.

Type help for commands, quit to exit.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "toolselector - %s\n", a.store.PrimaryPath())
	fmt.Fprintf(out, "Type help for commands, quit to exit\n\n")

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".toolselector", "shell_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mtools>\033[0m ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    shellCompleter(a.registry),
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(out, "Goodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !shellCommand(out, a, input) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
	}
}

func shellCompleter(r *tools.Registry) readline.AutoCompleter {
	names := func(string) []string {
		var out []string
		for _, t := range r.Tools() {
			out = append(out, t.Name)
		}
		return out
	}
	nameItem := func(cmd string) readline.PrefixCompleterInterface {
		return readline.PcItem(cmd, readline.PcItemDynamic(names))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("list"),
		nameItem("show"),
		nameItem("enable"),
		nameItem("disable"),
		nameItem("remove"),
		readline.PcItem("adopt"),
		readline.PcItem("backup"),
		readline.PcItem("reload"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// shellCommand runs one shell line and reports whether the shell should
// keep going.
func shellCommand(out io.Writer, a *app, input string) bool {
	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	verb, names := strings.ToLower(fields[0]), fields[1:]

	needName := func() bool {
		if len(names) == 0 {
			fmt.Fprintf(out, "usage: %s <name>...\n\n", verb)
			return false
		}
		return true
	}
	apply := func(op func(string) tools.Result, done string) {
		for _, name := range names {
			res := op(name)
			for _, w := range res.Warnings.Strings() {
				fmt.Fprintf(out, "  \033[33mwarning: %s\033[0m\n", w)
			}
			switch {
			case !res.OK:
				fmt.Fprintf(out, "  \033[31merror: %v\033[0m\n", res.Err)
			case res.Err != nil:
				fmt.Fprintf(out, "  \033[31m%s %s, but saving failed: %v\033[0m\n", done, name, res.Err)
			default:
				fmt.Fprintf(out, "  %s %s\n", done, name)
			}
		}
		fmt.Fprintln(out)
	}

	switch verb {
	case "quit", "exit", "q":
		return false
	case "list", "ls":
		for _, t := range a.registry.Tools() {
			mark := "\033[32m●\033[0m"
			if !t.Enabled {
				mark = "\033[90m○\033[0m"
			}
			fmt.Fprintf(out, "  %s %s\n", mark, t.Name)
		}
		fmt.Fprintln(out)
	case "show":
		if !needName() {
			break
		}
		for _, name := range names {
			t, ok := a.registry.Tool(name)
			if !ok {
				fmt.Fprintf(out, "  unknown tool: %s\n", name)
				continue
			}
			line := strings.Join(append([]string{t.Config.Command}, t.Config.Args...), " ")
			fmt.Fprintf(out, "  %s (%s): %s\n", t.Name, status(t), line)
		}
		fmt.Fprintln(out)
	case "enable", "on":
		if needName() {
			apply(a.registry.Enable, "enabled")
		}
	case "disable", "off":
		if needName() {
			apply(a.registry.Disable, "disabled")
		}
	case "remove", "rm":
		if needName() {
			apply(a.registry.Remove, "removed")
		}
	case "adopt":
		if needName() {
			apply(a.registry.Adopt, "adopted")
		}
	case "backup":
		only, warnings := a.registry.BackupOnly()
		for _, w := range warnings.Strings() {
			fmt.Fprintf(out, "  \033[33mwarning: %s\033[0m\n", w)
		}
		if len(only) == 0 {
			fmt.Fprintln(out, "  (no tools only in backup)")
		}
		for _, t := range only {
			fmt.Fprintf(out, "  \033[90m○\033[0m %s\n", t.Name)
		}
		fmt.Fprintln(out)
	case "reload":
		if err := a.registry.Reload(); err != nil {
			fmt.Fprintf(out, "  \033[31merror: %v\033[0m\n\n", err)
		} else {
			fmt.Fprintf(out, "  reloaded %d tool(s)\n\n", len(a.registry.Tools()))
		}
	case "help":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  list              - Show tools in this session")
		fmt.Fprintln(out, "  show <name>...    - Show a tool's command")
		fmt.Fprintln(out, "  enable <name>...  - Enable tools")
		fmt.Fprintln(out, "  disable <name>... - Disable tools")
		fmt.Fprintln(out, "  remove <name>...  - Remove tools")
		fmt.Fprintln(out, "  backup            - Show tools held only in the backup file")
		fmt.Fprintln(out, "  adopt <name>...   - Bring backup-only tools into this session as disabled")
		fmt.Fprintln(out, "  reload            - Re-read the configuration file")
		fmt.Fprintln(out, "  quit              - Exit")
		fmt.Fprintln(out)
	default:
		fmt.Fprintf(out, "Unknown command: %s (try help)\n\n", verb)
	}
	return true
}
