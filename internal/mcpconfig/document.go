// Package mcpconfig reads, writes and validates MCP server configuration
// documents: the live configuration file holding enabled tools and the backup
// file holding the configuration of disabled ones.
package mcpconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ServersKey is the top-level key holding tool definitions.
const ServersKey = "mcpServers"

// ToolConfig is the stored configuration of a single tool server.
type ToolConfig struct {
	Command string
	Args    []string
	Env     map[string]string

	// Extra holds keys other than command, args and env (for example
	// "disabled" or "autoApprove") so that they survive a toggle.
	Extra map[string]json.RawMessage
}

// Clone returns a deep copy of c.
func (c ToolConfig) Clone() ToolConfig {
	out := ToolConfig{Command: c.Command}
	if c.Args != nil {
		out.Args = slices.Clone(c.Args)
	}
	if c.Env != nil {
		out.Env = maps.Clone(c.Env)
	}
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// UnmarshalJSON decodes a tool entry, keeping unknown keys in Extra.
func (c *ToolConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = ToolConfig{}
	for key, value := range raw {
		var err error
		switch key {
		case "command":
			err = json.Unmarshal(value, &c.Command)
		case "args":
			err = json.Unmarshal(value, &c.Args)
		case "env":
			err = json.Unmarshal(value, &c.Env)
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]json.RawMessage)
			}
			c.Extra[key] = slices.Clone(value)
		}
		if err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON encodes command, args and env first, then any extra keys in
// sorted order. Args and env are omitted only when nil, so an explicit empty
// list in the file is written back as one.
func (c ToolConfig) MarshalJSON() ([]byte, error) {
	var w objectWriter
	w.field("command", c.Command)
	if c.Args != nil {
		w.field("args", c.Args)
	}
	if c.Env != nil {
		w.field("env", c.Env)
	}
	for _, key := range slices.Sorted(maps.Keys(c.Extra)) {
		w.field(key, c.Extra[key])
	}
	return w.bytes()
}

// Servers is an insertion-ordered map of tool name to configuration.
type Servers = orderedmap.OrderedMap[string, ToolConfig]

// NewServers returns an empty Servers map.
func NewServers() *Servers {
	return orderedmap.New[string, ToolConfig]()
}

// Document is the {"mcpServers": {...}} file shape. Other top-level keys are
// carried along untouched and written back in their original position.
type Document struct {
	Servers *Servers

	top *orderedmap.OrderedMap[string, json.RawMessage]
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Servers: NewServers()}
}

// Names returns the tool names in document order.
func (d *Document) Names() []string {
	names := make([]string, 0, d.Servers.Len())
	for pair := d.Servers.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Has reports whether the document contains a tool called name.
func (d *Document) Has(name string) bool {
	_, ok := d.Servers.Get(name)
	return ok
}

// Skeleton returns a document with d's other top-level keys and no servers.
func (d *Document) Skeleton() *Document {
	out := NewDocument()
	if d != nil && d.top != nil {
		out.top = orderedmap.New[string, json.RawMessage]()
		for pair := d.top.Oldest(); pair != nil; pair = pair.Next() {
			out.top.Set(pair.Key, slices.Clone(pair.Value))
		}
	}
	return out
}

// UnmarshalJSON decodes a document. A missing or null mcpServers key yields
// an empty server map.
func (d *Document) UnmarshalJSON(data []byte) error {
	top := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, top); err != nil {
		return err
	}

	d.Servers = NewServers()
	d.top = top

	raw, ok := top.Get(ServersKey)
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, d.Servers); err != nil {
		return fmt.Errorf("decoding %s: %w", ServersKey, err)
	}
	return nil
}

// MarshalJSON encodes the document, placing mcpServers first unless the
// source file had it elsewhere.
func (d *Document) MarshalJSON() ([]byte, error) {
	var w objectWriter

	placed := false
	if d.top == nil {
		w.field(ServersKey, serversJSON{d.Servers})
		placed = true
	} else if _, ok := d.top.Get(ServersKey); !ok {
		w.field(ServersKey, serversJSON{d.Servers})
		placed = true
	}

	if d.top != nil {
		for pair := d.top.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Key == ServersKey {
				if !placed {
					w.field(ServersKey, serversJSON{d.Servers})
				}
				continue
			}
			w.field(pair.Key, pair.Value)
		}
	}
	return w.bytes()
}

// serversJSON encodes a Servers map without HTML escaping, which the
// ordered map's own encoder applies.
type serversJSON struct {
	servers *Servers
}

func (s serversJSON) MarshalJSON() ([]byte, error) {
	var w objectWriter
	if s.servers != nil {
		for pair := s.servers.Oldest(); pair != nil; pair = pair.Next() {
			w.field(pair.Key, pair.Value)
		}
	}
	return w.bytes()
}

// objectWriter assembles a JSON object field by field in a fixed order.
type objectWriter struct {
	buf bytes.Buffer
	n   int
	err error
}

func (w *objectWriter) field(key string, value any) {
	if w.err != nil {
		return
	}
	k, err := encode(key)
	if err != nil {
		w.err = err
		return
	}
	v, err := encode(value)
	if err != nil {
		w.err = fmt.Errorf("encoding %q: %w", key, err)
		return
	}

	if w.n == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	w.n++
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(v)
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.n == 0 {
		return []byte("{}"), nil
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
