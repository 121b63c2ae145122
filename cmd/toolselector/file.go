package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolselector/internal/mcpconfig"
	"github.com/michaelbrown/toolselector/internal/storage"
)

var (
	fixFlag      bool
	exportFormat string
	exportOutput string
)

var importCmd = &cobra.Command{
	Use:   "import [file|-]",
	Short: "Add every tool defined in a JSON document",
	Long: `Add the tools of a {"mcpServers": {...}} document. Tools whose names already
exist are skipped. Reads stdin when no file or "-" is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

var validateCmd = &cobra.Command{
	Use:   "validate [file|-]",
	Short: "Check a JSON document without changing anything",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty configuration file if none exists",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Inspect the backup file",
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tools held only in the backup file",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration and backup files for problems",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all tools, enabled and disabled, as JSON or YAML",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(importCmd, validateCmd, initCmd, backupCmd, doctorCmd, exportCmd)
	backupCmd.AddCommand(backupListCmd)

	doctorCmd.Flags().BoolVar(&fixFlag, "fix", false, "Remove stale backup entries of enabled tools")

	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json or yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
}

func runImport(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.registry.AddFromJSON(text)
	printWarnings(cmd.ErrOrStderr(), res.Warnings)

	out := cmd.OutOrStdout()
	if len(res.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped existing: %s\n", strings.Join(res.Skipped, ", "))
	}
	if !res.OK {
		return res.Err
	}
	fmt.Fprintf(out, "Added: %s\n", strings.Join(res.Added, ", "))
	if res.Err != nil {
		return fmt.Errorf("tools added, but the configuration file was not saved: %w", res.Err)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	doc, err := mcpconfig.Validate(text)
	if err != nil {
		return err
	}

	names := doc.Names()
	fmt.Fprintf(cmd.OutOrStdout(), "Valid: %d tool(s)", len(names))
	if len(names) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ": %s", strings.Join(names, ", "))
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadSettings()
	if err != nil {
		return err
	}
	store := newStore(cfg, log)

	created, err := store.CreatePrimary()
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", store.PrimaryPath())
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", store.PrimaryPath())
	}
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	only, warnings := a.registry.BackupOnly()
	printWarnings(cmd.ErrOrStderr(), warnings)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backup file: %s\n", a.store.BackupPath())
	if len(only) == 0 {
		fmt.Fprintln(out, "No disabled tools in backup.")
	}
	for _, t := range only {
		fmt.Fprintf(out, "  %s\n", t.Name)
	}
	if conflicts := a.registry.Conflicts(); len(conflicts) > 0 {
		fmt.Fprintf(out, "Also in configuration (stale): %s\n", strings.Join(conflicts, ", "))
	}
	return nil
}

// errProblems is returned by doctor when it found something to report.
var errProblems = errors.New("problems found")

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadSettings()
	if err != nil {
		return err
	}
	store := newStore(cfg, log)
	out := cmd.OutOrStdout()
	problems := 0

	fmt.Fprintf(out, "Configuration: %s\n", store.PrimaryPath())
	doc, err := store.ReadPrimary()
	if err != nil {
		fmt.Fprintf(out, "  ✗ %v\n", err)
		return errProblems
	}
	if _, statErr := os.Stat(store.PrimaryPath()); statErr != nil {
		fmt.Fprintln(out, "  ✗ file does not exist (run init)")
		problems++
	} else {
		fmt.Fprintf(out, "  ✓ %d enabled tool(s)\n", doc.Servers.Len())
	}

	for pair := doc.Servers.Oldest(); pair != nil; pair = pair.Next() {
		if err := pair.Value.Check(pair.Key); err != nil {
			fmt.Fprintf(out, "  ✗ %v\n", err)
			problems++
			continue
		}
		if _, err := exec.LookPath(pair.Value.Command); err != nil {
			fmt.Fprintf(out, "  ! %s: command %q not found in PATH\n", pair.Key, pair.Value.Command)
		}
	}

	fmt.Fprintf(out, "Backup: %s\n", store.BackupPath())
	backup, warnings := store.ReadBackup()
	for _, w := range warnings {
		fmt.Fprintf(out, "  ✗ %s\n", w)
		problems++
	}

	var stale []string
	for _, name := range backup.Names() {
		if doc.Has(name) {
			stale = append(stale, name)
		}
	}
	if len(stale) == 0 {
		fmt.Fprintf(out, "  ✓ %d disabled tool(s)\n", backup.Servers.Len())
	} else if fixFlag {
		for _, name := range stale {
			backup.Servers.Delete(name)
		}
		if ws := store.WriteBackup(backup); len(ws) > 0 {
			printWarnings(cmd.ErrOrStderr(), ws)
			problems++
		} else {
			fmt.Fprintf(out, "  ✓ removed stale backup entries: %s\n", strings.Join(stale, ", "))
		}
	} else {
		fmt.Fprintf(out, "  ✗ in both files (configuration wins): %s (run doctor --fix)\n", strings.Join(stale, ", "))
		problems++
	}

	if problems > 0 {
		return errProblems
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ts := listed(cmd, a, true)

	if exportOutput == "" {
		return storage.Export(cmd.OutOrStdout(), ts, exportFormat)
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return err
	}
	defer f.Close()
	return storage.Export(f, ts, exportFormat)
}
