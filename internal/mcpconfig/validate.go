package mcpconfig

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ValidationError describes the first problem found in a JSON text.
type ValidationError struct {
	// Tool is the offending tool name, empty for document-level problems.
	Tool string
	Msg  string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func toolError(name, format string, args ...any) *ValidationError {
	return &ValidationError{
		Tool: name,
		Msg:  fmt.Sprintf("Tool '%s' ", name) + fmt.Sprintf(format, args...),
	}
}

// Validate parses text as a tool configuration document. It returns the
// document only when it is fully valid; otherwise the error is a
// *ValidationError naming the first violation in document order.
func Validate(text string) (*Document, error) {
	var probe any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("Invalid JSON: %v", err)}
	}

	servers := gjson.Parse(text).Get(ServersKey)
	if !servers.Exists() {
		return nil, &ValidationError{Msg: "JSON must contain an 'mcpServers' object"}
	}
	if !servers.IsObject() {
		return nil, &ValidationError{Msg: "'mcpServers' must be an object"}
	}

	var verr *ValidationError
	servers.ForEach(func(key, value gjson.Result) bool {
		verr = validateEntry(key.String(), value)
		return verr == nil
	})
	if verr != nil {
		return nil, verr
	}

	doc := NewDocument()
	if err := json.Unmarshal([]byte(text), doc); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("Error validating JSON: %v", err)}
	}
	return doc, nil
}

func validateEntry(name string, entry gjson.Result) *ValidationError {
	if !entry.IsObject() {
		return toolError(name, "configuration must be an object")
	}

	command := entry.Get("command")
	if !command.Exists() {
		return toolError(name, "must have a 'command' property")
	}
	if command.Type != gjson.String {
		return toolError(name, "'command' must be a string")
	}

	args := entry.Get("args")
	if args.Exists() && !args.IsArray() {
		return toolError(name, "'args' must be an array")
	}

	env := entry.Get("env")
	if env.Exists() && !env.IsObject() {
		return toolError(name, "'env' must be an object")
	}

	if command.String() == "" {
		return toolError(name, "'command' must not be empty")
	}
	for i, arg := range args.Array() {
		if arg.Type != gjson.String {
			return toolError(name, "'args' item %d must be a string", i)
		}
	}
	var bad string
	found := false
	env.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			bad, found = key.String(), true
			return false
		}
		return true
	})
	if found {
		return toolError(name, "'env' value for %q must be a string", bad)
	}
	return nil
}

// Check reports whether cfg satisfies the stored-configuration invariants.
func (c ToolConfig) Check(name string) error {
	if name == "" {
		return &ValidationError{Msg: "tool name must not be empty"}
	}
	if c.Command == "" {
		return toolError(name, "'command' must not be empty")
	}
	return nil
}
