package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolselector/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve tool selection over MCP stdio",
	Long: `Run an MCP server on stdin/stdout exposing list_tools, enable_tool and
disable_tool, so an assistant can switch its own tools. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// controlServer exposes a registry as MCP tools.
type controlServer struct {
	mu       sync.Mutex
	registry *tools.Registry
}

func newControlServer(r *tools.Registry) *server.MCPServer {
	c := &controlServer{registry: r}
	s := server.NewMCPServer("toolselector", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "list_tools",
		Description: "List the configured MCP servers and whether each is enabled.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleList)

	nameSchema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Name of the MCP server entry",
			},
		},
		Required: []string{"name"},
	}

	s.AddTool(mcp.Tool{
		Name:        "enable_tool",
		Description: "Enable an MCP server entry. The client must be restarted to pick it up.",
		InputSchema: nameSchema,
	}, c.handleEnable)

	s.AddTool(mcp.Tool{
		Name:        "disable_tool",
		Description: "Disable an MCP server entry, keeping its settings in the backup file.",
		InputSchema: nameSchema,
	}, c.handleDisable)

	return s
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.Info().Str("config", a.store.PrimaryPath()).Msg("serving MCP on stdio")
	return server.ServeStdio(newControlServer(a.registry))
}

func getArgs(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}

func (c *controlServer) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.registry.Tools()
	only, _ := c.registry.BackupOnly()
	ts = append(ts, only...)
	if len(ts) == 0 {
		return textResult("No tools configured."), nil
	}

	var b strings.Builder
	for _, t := range ts {
		fmt.Fprintf(&b, "%s: %s\n", t.Name, status(t))
	}
	return textResult(b.String()), nil
}

func (c *controlServer) handleEnable(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.apply(request, c.registry.Enable, "enabled"), nil
}

func (c *controlServer) handleDisable(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.apply(request, c.registry.Disable, "disabled"), nil
}

func (c *controlServer) apply(request mcp.CallToolRequest, op func(string) tools.Result, done string) *mcp.CallToolResult {
	name, _ := getArgs(request)["name"].(string)
	if name == "" {
		return errResult("name is required")
	}

	c.mu.Lock()
	res := op(name)
	c.mu.Unlock()

	if !res.OK {
		return errResult(res.Err.Error())
	}
	if res.Err != nil {
		return errResult(fmt.Sprintf("%s %s, but saving failed: %v", done, name, res.Err))
	}
	msg := fmt.Sprintf("%s %s", done, name)
	if len(res.Warnings) > 0 {
		msg += "\nwarning: " + res.Warnings.String()
	}
	return textResult(msg)
}
