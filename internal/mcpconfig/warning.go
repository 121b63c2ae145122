package mcpconfig

import (
	"fmt"
	"strings"
)

// Warning reports a problem with the backup file. Backup problems never fail
// an operation; they are handed back so callers can show or ignore them.
// Warning deliberately does not implement error.
type Warning struct {
	Op   string
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %v", w.Op, w.Path, w.Err)
}

// Warnings is a list of backup warnings collected by one operation.
type Warnings []Warning

// Strings renders each warning.
func (ws Warnings) Strings() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}

func (ws Warnings) String() string {
	return strings.Join(ws.Strings(), "; ")
}
