package tools

import (
	"errors"

	"github.com/michaelbrown/toolselector/internal/mcpconfig"
)

var (
	ErrToolExists   = errors.New("tool already exists")
	ErrToolNotFound = errors.New("tool does not exist")
	ErrNothingAdded = errors.New("no tools were added")
)

// Tool is a named MCP server entry and whether it is currently enabled.
type Tool struct {
	Name    string
	Config  mcpconfig.ToolConfig
	Enabled bool
}

// Action names a registry operation.
type Action string

const (
	ActionAdd     Action = "add"
	ActionUpdate  Action = "update"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
	ActionRemove  Action = "remove"
	ActionImport  Action = "import"
	ActionReload  Action = "reload"
	ActionAdopt   Action = "adopt"
)

// Result is the outcome of a single-tool operation.
//
// OK is false only for logical failures (unknown or duplicate name, invalid
// config); Err then says why. When OK is true and Err is set, the change was
// applied in memory but writing the configuration file failed, so the file
// may be out of date and the caller should consider reloading.
type Result struct {
	OK       bool
	Err      error
	Warnings mcpconfig.Warnings
}

// ImportResult is the outcome of AddFromJSON.
type ImportResult struct {
	Result
	Added   []string
	Skipped []string
}

// Change is passed to Registry.OnChange after each state-changing operation.
type Change struct {
	Action  Action
	Tools   []string
	OK      bool
	Message string
}
