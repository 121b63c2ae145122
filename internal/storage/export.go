package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/toolselector/internal/tools"
)

// ExportedTool is the export shape of one tool. Keys other than command,
// args and env are carried in Extra.
type ExportedTool struct {
	Name    string            `json:"name" yaml:"name"`
	Enabled bool              `json:"enabled" yaml:"enabled"`
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Extra   map[string]any    `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Exported converts tools to their export shape, keeping order.
func Exported(ts []tools.Tool) []ExportedTool {
	out := make([]ExportedTool, 0, len(ts))
	for _, t := range ts {
		out = append(out, ExportedTool{
			Name:    t.Name,
			Enabled: t.Enabled,
			Command: t.Config.Command,
			Args:    t.Config.Args,
			Env:     t.Config.Env,
			Extra:   extraValues(t.Config.Extra),
		})
	}
	return out
}

func extraValues(raw map[string]json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			val = string(v)
		}
		out[k] = val
	}
	return out
}

// ExportJSON renders tools as formatted JSON.
func ExportJSON(ts []tools.Tool) ([]byte, error) {
	return json.MarshalIndent(struct {
		Tools []ExportedTool `json:"tools"`
	}{Exported(ts)}, "", "  ")
}

// ExportYAML renders tools as YAML.
func ExportYAML(ts []tools.Tool) ([]byte, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Tools []ExportedTool `yaml:"tools"`
	}{Exported(ts)}); err != nil {
		return nil, err
	}
	enc.Close()
	return []byte(b.String()), nil
}

// Export writes tools to w in the named format (json or yaml).
func Export(w io.Writer, ts []tools.Tool, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "", "json":
		data, err = ExportJSON(ts)
		if err == nil {
			data = append(data, '\n')
		}
	case "yaml", "yml":
		data, err = ExportYAML(ts)
	default:
		return fmt.Errorf("unknown export format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("exporting tools: %w", err)
	}
	_, err = w.Write(data)
	return err
}
