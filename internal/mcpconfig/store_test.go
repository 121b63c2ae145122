package mcpconfig_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/michaelbrown/toolselector/internal/mcpconfig"
)

const testConfig = `{
  "mcpServers": {
    "test-tool": {
      "command": "npx",
      "args": ["-y", "@test/tool"]
    }
  }
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// decodeFile returns the generic JSON value stored at path.
func decodeFile(t *testing.T, path string) any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return v
}

func decodeString(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decoding %q: %v", s, err)
	}
	return v
}

func newStore(t *testing.T) (*mcpconfig.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, testConfig)
	return mcpconfig.NewStore(path, ""), path
}

func TestDefaultBackupPath(t *testing.T) {
	s := mcpconfig.NewStore("/tmp/x/config.json", "")
	if got, want := s.BackupPath(), "/tmp/x/config.json.backup"; got != want {
		t.Errorf("BackupPath() = %q, want %q", got, want)
	}

	s = mcpconfig.NewStore("/tmp/x/config.json", "/elsewhere/b.json")
	if got := s.BackupPath(); got != "/elsewhere/b.json" {
		t.Errorf("BackupPath() = %q, want explicit path", got)
	}
}

func TestReadPrimary(t *testing.T) {
	s, _ := newStore(t)

	doc, err := s.ReadPrimary()
	if err != nil {
		t.Fatalf("ReadPrimary: %v", err)
	}
	cfg, ok := doc.Servers.Get("test-tool")
	if !ok {
		t.Fatal("test-tool missing")
	}
	if cfg.Command != "npx" {
		t.Errorf("command = %q, want npx", cfg.Command)
	}
	if !reflect.DeepEqual(cfg.Args, []string{"-y", "@test/tool"}) {
		t.Errorf("args = %v", cfg.Args)
	}
}

func TestReadPrimaryMissingFile(t *testing.T) {
	s := mcpconfig.NewStore(filepath.Join(t.TempDir(), "nonexistent.json"), "")

	doc, err := s.ReadPrimary()
	if err != nil {
		t.Fatalf("ReadPrimary: %v", err)
	}
	if doc.Servers.Len() != 0 {
		t.Errorf("servers = %d, want 0", doc.Servers.Len())
	}
}

func TestReadPrimaryCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"mcpServers": {"a": {"command": "npx",}}}`)

	_, err := mcpconfig.NewStore(path, "").ReadPrimary()
	if err == nil {
		t.Fatal("ReadPrimary on corrupt file should fail")
	}
	if !errors.Is(err, mcpconfig.ErrCorruptDocument) {
		t.Errorf("err = %v, want ErrCorruptDocument", err)
	}
}

func TestReadPrimaryMissingServersKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"theme": "dark"}`)

	doc, err := mcpconfig.NewStore(path, "").ReadPrimary()
	if err != nil {
		t.Fatalf("ReadPrimary: %v", err)
	}
	if doc.Servers == nil || doc.Servers.Len() != 0 {
		t.Fatal("expected empty mcpServers to be synthesized")
	}
}

func TestWritePrimary(t *testing.T) {
	s, path := newStore(t)

	doc := mcpconfig.NewDocument()
	doc.Servers.Set("test-tool", mcpconfig.ToolConfig{Command: "npx", Args: []string{"-y", "@modified/tool"}})
	if err := s.WritePrimary(doc); err != nil {
		t.Fatalf("WritePrimary: %v", err)
	}

	want := decodeString(t, `{"mcpServers":{"test-tool":{"command":"npx","args":["-y","@modified/tool"]}}}`)
	if got := decodeFile(t, path); !reflect.DeepEqual(got, want) {
		t.Errorf("file = %v, want %v", got, want)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "\n  \"mcpServers\": {\n    \"test-tool\"") {
		t.Errorf("file is not two-space indented:\n%s", data)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Errorf("file should end with a newline")
	}
}

func TestWritePrimaryCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "config.json")
	s := mcpconfig.NewStore(path, "")

	if err := s.WritePrimary(mcpconfig.NewDocument()); err != nil {
		t.Fatalf("WritePrimary: %v", err)
	}
	if got := decodeFile(t, path); !reflect.DeepEqual(got, decodeString(t, `{"mcpServers":{}}`)) {
		t.Errorf("file = %v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the config file, found %d entries (temp file left behind?)", len(entries))
	}
}

func TestWritePrimaryFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	writeFile(t, blocker, "x")

	s := mcpconfig.NewStore(filepath.Join(blocker, "config.json"), "")
	if err := s.WritePrimary(mcpconfig.NewDocument()); err == nil {
		t.Fatal("WritePrimary under a regular file should fail")
	}
}

func TestWritePreservesOrderAndExtraKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	original := `{
  "globalShortcut": "Ctrl+Space",
  "mcpServers": {
    "zeta": {
      "command": "uvx",
      "disabled": false
    },
    "alpha": {
      "command": "npx",
      "args": [],
      "env": {
        "TOKEN": "a&b<c>"
      }
    }
  },
  "theme": "dark"
}
`
	writeFile(t, path, original)
	s := mcpconfig.NewStore(path, "")

	doc, err := s.ReadPrimary()
	if err != nil {
		t.Fatalf("ReadPrimary: %v", err)
	}
	if got := doc.Names(); !reflect.DeepEqual(got, []string{"zeta", "alpha"}) {
		t.Errorf("Names() = %v, want [zeta alpha]", got)
	}
	if err := s.WritePrimary(doc); err != nil {
		t.Fatalf("WritePrimary: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Errorf("round trip changed the file:\ngot:\n%s\nwant:\n%s", data, original)
	}
}

func TestReadBackupCorruptDegrades(t *testing.T) {
	s, _ := newStore(t)
	writeFile(t, s.BackupPath(), "not json")

	doc, warnings := s.ReadBackup()
	if doc == nil || doc.Servers.Len() != 0 {
		t.Fatal("corrupt backup should read as an empty document")
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	if !errors.Is(warnings[0].Err, mcpconfig.ErrCorruptDocument) {
		t.Errorf("warning err = %v, want ErrCorruptDocument", warnings[0].Err)
	}
}

func TestWriteBackupFailureIsWarning(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	writeFile(t, blocker, "x")

	s := mcpconfig.NewStore(filepath.Join(dir, "config.json"), filepath.Join(blocker, "backup.json"))
	warnings := s.WriteBackup(mcpconfig.NewDocument())
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	if warnings[0].Op != "write backup" {
		t.Errorf("op = %q", warnings[0].Op)
	}
}

func TestBackupTool(t *testing.T) {
	s, _ := newStore(t)
	cfg := mcpconfig.ToolConfig{Command: "npx", Args: []string{"-y", "@test/tool"}}

	if w := s.BackupTool("test-tool", cfg); len(w) != 0 {
		t.Fatalf("BackupTool warnings: %v", w)
	}

	want := decodeString(t, `{"mcpServers":{"test-tool":{"command":"npx","args":["-y","@test/tool"]}}}`)
	if got := decodeFile(t, s.BackupPath()); !reflect.DeepEqual(got, want) {
		t.Errorf("backup = %v, want %v", got, want)
	}
}

func TestBackupToolKeepsCorruptBackupAside(t *testing.T) {
	s, _ := newStore(t)
	writeFile(t, s.BackupPath(), "{broken")

	warnings := s.BackupTool("a", mcpconfig.ToolConfig{Command: "npx"})
	if len(warnings) == 0 {
		t.Fatal("expected a warning about the corrupt backup")
	}

	saved, err := os.ReadFile(s.BackupPath() + ".corrupt")
	if err != nil {
		t.Fatalf("corrupt backup not kept: %v", err)
	}
	if string(saved) != "{broken" {
		t.Errorf("saved = %q", saved)
	}
	doc, w := s.ReadBackup()
	if len(w) != 0 || !doc.Has("a") {
		t.Errorf("backup should now hold tool a (warnings %v)", w)
	}
}

func TestRestoreTool(t *testing.T) {
	s, _ := newStore(t)
	cfg := mcpconfig.ToolConfig{Command: "npx", Args: []string{"-y", "@test/tool"}, Env: map[string]string{"K": "v"}}
	s.BackupTool("test-tool", cfg)

	got, ok, warnings := s.RestoreTool("test-tool")
	if !ok {
		t.Fatal("RestoreTool should find the tool")
	}
	if len(warnings) != 0 {
		t.Errorf("warnings: %v", warnings)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("restored = %+v, want %+v", got, cfg)
	}

	backup, _ := s.ReadBackup()
	if backup.Has("test-tool") {
		t.Error("tool should be removed from backup after restore")
	}

	if _, ok, _ := s.RestoreTool("test-tool"); ok {
		t.Error("a backup entry can only be restored once")
	}
}

func TestRestoreToolNotFound(t *testing.T) {
	s, _ := newStore(t)

	if _, ok, _ := s.RestoreTool("missing"); ok {
		t.Fatal("RestoreTool should report not found")
	}
	if _, err := os.Stat(s.BackupPath()); !os.IsNotExist(err) {
		t.Error("restore of a missing tool should not create the backup file")
	}
}

func TestCreatePrimary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new", "config.json")
	s := mcpconfig.NewStore(path, "")

	created, err := s.CreatePrimary()
	if err != nil || !created {
		t.Fatalf("CreatePrimary = %v, %v", created, err)
	}
	created, err = s.CreatePrimary()
	if err != nil || created {
		t.Fatalf("second CreatePrimary = %v, %v; want false, nil", created, err)
	}
}

func TestPrimaryChanged(t *testing.T) {
	s, path := newStore(t)
	if _, err := s.ReadPrimary(); err != nil {
		t.Fatalf("ReadPrimary: %v", err)
	}

	changed, err := s.PrimaryChanged()
	if err != nil || changed {
		t.Fatalf("PrimaryChanged after read = %v, %v", changed, err)
	}

	if err := s.WritePrimary(mcpconfig.NewDocument()); err != nil {
		t.Fatalf("WritePrimary: %v", err)
	}
	if changed, _ := s.PrimaryChanged(); changed {
		t.Error("own write should not count as a change")
	}

	writeFile(t, path, `{"mcpServers":{"x":{"command":"y"}}}`)
	if changed, _ := s.PrimaryChanged(); !changed {
		t.Error("external edit should count as a change")
	}
}
