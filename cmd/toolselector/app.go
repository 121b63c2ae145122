package main

import (
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolselector/internal/config"
	"github.com/michaelbrown/toolselector/internal/logging"
	"github.com/michaelbrown/toolselector/internal/mcpconfig"
	"github.com/michaelbrown/toolselector/internal/storage"
	"github.com/michaelbrown/toolselector/internal/storage/sqlite"
	"github.com/michaelbrown/toolselector/internal/tools"
)

// app bundles everything a command needs.
type app struct {
	cfg      *config.Config
	log      *bolt.Logger
	store    *mcpconfig.Store
	registry *tools.Registry
	history  storage.Store
}

// loadSettings reads the settings file and applies the global flags.
func loadSettings() (*config.Config, *bolt.Logger, error) {
	load := config.Load
	if settingsFlag != "" {
		load = func() (*config.Config, error) { return config.LoadFile(settingsFlag) }
	}
	cfg, err := load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	if configFlag != "" {
		cfg.ConfigPath = configFlag
	}
	if backupFlag != "" {
		cfg.BackupPath = backupFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, logging.New(cfg.Logging()), nil
}

func newStore(cfg *config.Config, log *bolt.Logger) *mcpconfig.Store {
	return mcpconfig.NewStore(cfg.ConfigPath, cfg.BackupPath, mcpconfig.WithLogger(log))
}

// openApp loads settings, the registry and the change history. History is
// optional: if the database cannot be opened the commands still work.
func openApp() (*app, error) {
	cfg, log, err := loadSettings()
	if err != nil {
		return nil, err
	}

	store := newStore(cfg, log)
	registry, err := tools.Open(store, tools.WithLogger(log))
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, store: store, registry: registry}

	history, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Storage.DBPath).Msg("history disabled")
	} else {
		a.history = history
		registry.OnChange = storage.Recorder(history, log)
	}
	return a, nil
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
}

// lookup finds a tool in the registry or, failing that, in the backup file.
func lookup(a *app, name string) (tools.Tool, error) {
	if t, ok := a.registry.Tool(name); ok {
		return t, nil
	}
	only, _ := a.registry.BackupOnly()
	for _, t := range only {
		if t.Name == name {
			return t, nil
		}
	}
	return tools.Tool{}, fmt.Errorf("%w: %s", tools.ErrToolNotFound, name)
}

// report prints backup warnings and converts a Result into an error.
func report(cmd *cobra.Command, res tools.Result, done string) error {
	printWarnings(cmd.ErrOrStderr(), res.Warnings)
	if !res.OK {
		return res.Err
	}
	if res.Err != nil {
		return fmt.Errorf("%s, but the configuration file was not saved: %w", done, res.Err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), done)
	return nil
}

func printWarnings(w io.Writer, ws mcpconfig.Warnings) {
	for _, s := range ws.Strings() {
		fmt.Fprintf(w, "warning: %s\n", s)
	}
}

// readInput reads a file argument, or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

func status(t tools.Tool) string {
	if t.Enabled {
		return "enabled"
	}
	return "disabled"
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-2] + ".."
	}
	return s
}
