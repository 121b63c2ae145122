package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/michaelbrown/toolselector/internal/tools"
)

const twoTools = `{
  "mcpServers": {
    "alpha": {"command": "npx", "args": ["-y", "@x/alpha"]},
    "beta": {"command": "uvx", "args": ["beta-server"], "env": {"TOKEN": "t"}}
  }
}`

// setup isolates settings and history and writes a configuration file.
func setup(t *testing.T, content string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("TOOLSELECTOR_STORAGE_DB_PATH", filepath.Join(home, "history.db"))
	t.Chdir(home)

	path := filepath.Join(t.TempDir(), "config.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := rootCmd.Execute()
	return out.String(), err
}

func servers(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var doc struct {
		Servers map[string]any `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return doc.Servers
}

func TestDisableThenEnableAcrossRuns(t *testing.T) {
	path := setup(t, twoTools)

	out, err := run(t, "", "--config", path, "disable", "beta")
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if !strings.Contains(out, "Disabled beta") {
		t.Errorf("output = %q", out)
	}
	if _, ok := servers(t, path)["beta"]; ok {
		t.Error("beta still in configuration file")
	}
	if _, ok := servers(t, path+".backup")["beta"]; !ok {
		t.Error("beta not in backup file")
	}

	out, err = run(t, "", "--config", path, "list", "--all")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "beta") || !strings.Contains(out, "disabled") {
		t.Errorf("list output = %q", out)
	}

	// a new run only sees beta in the backup file
	out, err = run(t, "", "--config", path, "enable", "beta")
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !strings.Contains(out, "Enabled beta") {
		t.Errorf("output = %q", out)
	}
	beta, ok := servers(t, path)["beta"].(map[string]any)
	if !ok || beta["command"] != "uvx" {
		t.Errorf("beta after enable = %v", servers(t, path)["beta"])
	}
	if _, ok := servers(t, path+".backup")["beta"]; ok {
		t.Error("beta still in backup file")
	}
}

func TestSettingsFile(t *testing.T) {
	path := setup(t, twoTools)
	settings := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(settings, []byte("config_path: "+path+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "--settings", settings, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "beta") {
		t.Errorf("list output = %q", out)
	}

	if _, err := run(t, "", "--settings", filepath.Join(t.TempDir(), "nope.yaml"), "list"); err == nil {
		t.Error("missing settings file should fail")
	}
}

func TestEnableUnknownFails(t *testing.T) {
	path := setup(t, twoTools)

	_, err := run(t, "", "--config", path, "enable", "nope")
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("err = %v", err)
	}
}

func TestAddAndUpdate(t *testing.T) {
	path := setup(t, twoTools)

	_, err := run(t, "", "--config", path, "add", "gamma", "--command", "node", "--arg", "a.js", "--arg=--stdio", "--env", "K=v")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	gamma := servers(t, path)["gamma"].(map[string]any)
	if args := gamma["args"].([]any); len(args) != 2 || args[1] != "--stdio" {
		t.Errorf("gamma args = %v", gamma["args"])
	}

	if _, err := run(t, "", "--config", path, "add", "gamma", "--command", "node"); !errors.Is(err, tools.ErrToolExists) {
		t.Errorf("duplicate add err = %v", err)
	}

	if _, err := run(t, "", "--config", path, "update", "gamma", "--arg", "b.js"); err != nil {
		t.Fatalf("update: %v", err)
	}
	gamma = servers(t, path)["gamma"].(map[string]any)
	if gamma["command"] != "node" {
		t.Errorf("update changed command: %v", gamma)
	}
	if args := gamma["args"].([]any); len(args) != 1 || args[0] != "b.js" {
		t.Errorf("gamma args after update = %v", gamma["args"])
	}
	if env := gamma["env"].(map[string]any); env["K"] != "v" {
		t.Errorf("update lost env: %v", gamma)
	}

	if _, err := run(t, "", "--config", path, "add", "delta", "--command", "x", "--env", "novalue"); err == nil {
		t.Error("bad --env should fail")
	}
}

func TestAddOfDisabledToolFails(t *testing.T) {
	path := setup(t, twoTools)

	if _, err := run(t, "", "--config", path, "disable", "alpha"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	_, err := run(t, "", "--config", path, "add", "alpha", "--command", "other")
	if !errors.Is(err, tools.ErrToolExists) || !strings.Contains(err.Error(), "enable") {
		t.Errorf("add err = %v", err)
	}
	_, err = run(t, `{"mcpServers":{"alpha":{"command":"other"}}}`, "--config", path, "import")
	if !errors.Is(err, tools.ErrNothingAdded) {
		t.Errorf("import err = %v", err)
	}

	_, inPrimary := servers(t, path)["alpha"]
	backup, inBackup := servers(t, path+".backup")["alpha"].(map[string]any)
	if inPrimary || !inBackup {
		t.Fatalf("alpha in primary=%v in backup=%v", inPrimary, inBackup)
	}
	if backup["command"] != "npx" {
		t.Errorf("backup entry = %v", backup)
	}
}

func TestRemove(t *testing.T) {
	path := setup(t, twoTools)

	out, err := run(t, "n\n", "--config", path, "remove", "alpha")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(out, "Cancelled") {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, "", "--config", path, "remove", "--force", "alpha"); err != nil {
		t.Fatalf("remove --force: %v", err)
	}
	if _, ok := servers(t, path)["alpha"]; ok {
		t.Error("alpha still in configuration file")
	}
	if _, ok := servers(t, path+".backup")["alpha"]; !ok {
		t.Error("removed enabled tool should be kept in backup")
	}
}

func TestImportFromStdin(t *testing.T) {
	path := setup(t, twoTools)

	out, err := run(t, `{"mcpServers":{"alpha":{"command":"x"},"gamma":{"command":"y"}}}`, "--config", path, "import")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Added: gamma") || !strings.Contains(out, "Skipped existing: alpha") {
		t.Errorf("output = %q", out)
	}

	_, err = run(t, `{"mcpServers":{"alpha":{"command":"x"}}}`, "--config", path, "import", "-")
	if !errors.Is(err, tools.ErrNothingAdded) {
		t.Errorf("err = %v, want ErrNothingAdded", err)
	}
}

func TestValidate(t *testing.T) {
	setup(t, "")
	file := filepath.Join(t.TempDir(), "in.json")

	os.WriteFile(file, []byte(`{"mcpServers":{"b":{"command":"x"},"a":{"command":"y"}}}`), 0o644)
	out, err := run(t, "", "validate", file)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "Valid: 2 tool(s): b, a") {
		t.Errorf("output = %q", out)
	}

	os.WriteFile(file, []byte(`{"mcpServers":{"x":{"command":"y","args":"z"}}}`), 0o644)
	_, err = run(t, "", "validate", file)
	if err == nil || !strings.Contains(err.Error(), "Tool 'x'") {
		t.Errorf("err = %v", err)
	}
}

func TestInit(t *testing.T) {
	path := setup(t, "")
	path = filepath.Join(filepath.Dir(path), "new", "config.json")

	out, err := run(t, "", "--config", path, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Created") {
		t.Errorf("output = %q", out)
	}
	if s := servers(t, path); s == nil || len(s) != 0 {
		t.Errorf("servers = %v, want empty object", s)
	}

	out, _ = run(t, "", "--config", path, "init")
	if !strings.Contains(out, "already exists") {
		t.Errorf("second init output = %q", out)
	}
}

func TestDoctorFixesStaleBackup(t *testing.T) {
	path := setup(t, twoTools)
	os.WriteFile(path+".backup", []byte(`{"mcpServers":{"alpha":{"command":"old"},"zeta":{"command":"z"}}}`), 0o644)

	if _, err := run(t, "", "--config", path, "doctor"); !errors.Is(err, errProblems) {
		t.Fatalf("doctor err = %v, want errProblems", err)
	}

	if _, err := run(t, "", "--config", path, "doctor", "--fix"); err != nil {
		t.Fatalf("doctor --fix: %v", err)
	}
	backup := servers(t, path+".backup")
	if _, ok := backup["alpha"]; ok {
		t.Error("stale alpha not removed from backup")
	}
	if _, ok := backup["zeta"]; !ok {
		t.Error("zeta should stay in backup")
	}
}

func TestExport(t *testing.T) {
	path := setup(t, twoTools)
	run(t, "", "--config", path, "disable", "alpha")

	out, err := run(t, "", "--config", path, "export", "--format", "yaml")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "name: beta") || !strings.Contains(out, "name: alpha") || !strings.Contains(out, "enabled: false") {
		t.Errorf("yaml = %q", out)
	}

	if _, err := run(t, "", "--config", path, "export", "--format", "ini"); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestHistoryRecordsChanges(t *testing.T) {
	path := setup(t, twoTools)
	run(t, "", "--config", path, "disable", "alpha")
	run(t, "", "--config", path, "enable", "missing")

	out, err := run(t, "", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "disable") || !strings.Contains(out, "alpha") {
		t.Errorf("history = %q", out)
	}

	out, _ = run(t, "", "history", "--action", "disable")
	if strings.Contains(out, "missing") {
		t.Errorf("filtered history = %q", out)
	}
}

func TestShellCommands(t *testing.T) {
	path := setup(t, twoTools)
	configFlag = path
	defer func() { configFlag = "" }()

	a, err := openApp()
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	if !shellCommand(&out, a, "disable alpha") {
		t.Fatal("disable should not end the shell")
	}
	if tool, _ := a.registry.Tool("alpha"); tool.Enabled {
		t.Error("alpha should be disabled")
	}

	out.Reset()
	shellCommand(&out, a, "/list")
	if !strings.Contains(out.String(), "alpha") || !strings.Contains(out.String(), "beta") {
		t.Errorf("list = %q", out.String())
	}

	out.Reset()
	shellCommand(&out, a, "enable")
	if !strings.Contains(out.String(), "usage") {
		t.Errorf("enable without name = %q", out.String())
	}

	out.Reset()
	shellCommand(&out, a, "frobnicate")
	if !strings.Contains(out.String(), "Unknown command") {
		t.Errorf("unknown = %q", out.String())
	}

	if shellCommand(&out, a, "quit") {
		t.Error("quit should end the shell")
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content = %v", res.Content)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] = %T", res.Content[0])
	}
	return text.Text
}

func TestControlServer(t *testing.T) {
	path := setup(t, twoTools)
	configFlag = path
	defer func() { configFlag = "" }()

	a, err := openApp()
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()
	c := &controlServer{registry: a.registry}
	ctx := context.Background()

	res, _ := c.handleDisable(ctx, callRequest("disable_tool", map[string]any{"name": "alpha"}))
	if res.IsError || !strings.Contains(resultText(t, res), "disabled alpha") {
		t.Errorf("disable = %+v", res)
	}

	res, _ = c.handleList(ctx, callRequest("list_tools", nil))
	if text := resultText(t, res); !strings.Contains(text, "alpha: disabled") || !strings.Contains(text, "beta: enabled") {
		t.Errorf("list = %q", text)
	}

	res, _ = c.handleEnable(ctx, callRequest("enable_tool", map[string]any{"name": "nope"}))
	if !res.IsError {
		t.Error("enabling unknown tool should be an error result")
	}

	res, _ = c.handleEnable(ctx, callRequest("enable_tool", map[string]any{}))
	if !res.IsError || resultText(t, res) != "name is required" {
		t.Errorf("missing name = %+v", res)
	}
}

func TestProbeUnknownTool(t *testing.T) {
	path := setup(t, twoTools)

	if _, err := run(t, "", "--config", path, "probe", "nope"); !errors.Is(err, tools.ErrToolNotFound) {
		t.Errorf("err = %v", err)
	}
}
