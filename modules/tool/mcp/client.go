package mcp

import (
	"context"
	"os/exec"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// serverClient is the slice of the MCP client the module uses. Faked
// in tests; *client.Client implements it.
type serverClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// newServerClient launches an MCP server process and returns a client
// attached to its stdio. Package variable so tests can swap it.
var newServerClient = func(command string, env []string, args []string) (serverClient, error) {
	return client.NewStdioMCPClientWithOptions(command, env, args,
		transport.WithCommandFunc(stdioCommand))
}

// stdioCommand builds the server process. The default transport appends
// its env argument to os.Environ, which would hand the bot's secrets to
// every server; building the command here keeps the child environment
// to exactly the sanitized set.
func stdioCommand(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = env
	return cmd, nil
}

// childEnv appends the per-server env entries to the sanitized base in
// sorted key order. os/exec resolves duplicate keys to the last entry,
// so configured values override inherited ones.
func childEnv(base []string, extra map[string]string) []string {
	env := make([]string, len(base), len(base)+len(extra))
	copy(env, base)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// initialize runs the MCP handshake, identifying the bot to the server.
func initialize(ctx context.Context, cli serverClient, version string) (*mcp.InitializeResult, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "herald", Version: version}
	return cli.Initialize(ctx, req)
}

// listTools fetches the server's full tool list, following pagination
// cursors until the server reports no more pages.
func listTools(ctx context.Context, cli serverClient) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	var cursor mcp.Cursor
	for {
		req := mcp.ListToolsRequest{}
		req.Params.Cursor = cursor
		res, err := cli.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}
