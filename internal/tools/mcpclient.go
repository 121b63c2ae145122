package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/toolselector/internal/mcpconfig"
)

// MCPConnection wraps an mcp-go stdio client for a single tool server.
type MCPConnection struct {
	name       string
	client     *client.Client
	serverInfo mcp.Implementation
	tools      []mcp.Tool
}

// NewMCPConnection launches the tool's command, initializes the MCP session
// and lists the tools the server exposes.
func NewMCPConnection(ctx context.Context, name string, cfg mcpconfig.ToolConfig) (*MCPConnection, error) {
	c, err := client.NewStdioMCPClient(cfg.Command, BuildEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("starting MCP server %s (%s): %w", name, cfg.Command, err)
	}

	// Initialize the MCP protocol
	initResult, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "toolselector",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing MCP server %s: %w", name, err)
	}

	// Discover tools
	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("listing tools from %s: %w", name, err)
	}

	return &MCPConnection{
		name:       name,
		client:     c,
		serverInfo: initResult.ServerInfo,
		tools:      result.Tools,
	}, nil
}

// BuildEnv returns the process environment plus the tool's env entries.
// Values of the form ${VAR} are expanded from the current environment.
func BuildEnv(extra map[string]string) []string {
	env := append([]string(nil), os.Environ()...)
	for k, v := range extra {
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			v = os.Getenv(v[2 : len(v)-1])
		}
		env = append(env, k+"="+v)
	}
	return env
}

// ServerName returns the name the server reported during initialization.
func (mc *MCPConnection) ServerName() string {
	if mc.serverInfo.Version == "" {
		return mc.serverInfo.Name
	}
	return mc.serverInfo.Name + " " + mc.serverInfo.Version
}

// ToolNames returns the names of all tools on this server.
func (mc *MCPConnection) ToolNames() []string {
	names := make([]string, len(mc.tools))
	for i, t := range mc.tools {
		names[i] = t.Name
	}
	return names
}

// Descriptions maps each tool on this server to its description.
func (mc *MCPConnection) Descriptions() map[string]string {
	out := make(map[string]string, len(mc.tools))
	for _, t := range mc.tools {
		out[t.Name] = t.Description
	}
	return out
}

// Close shuts down the MCP server subprocess.
func (mc *MCPConnection) Close() {
	mc.client.Close()
}
