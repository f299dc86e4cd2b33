package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/heraldbot/herald/internal/tool"
)

// remoteTool adapts one tool exported by an MCP server to the registry
// Tool interface. The registry name is prefixed with the server name so
// two servers exporting the same tool cannot collide.
type remoteTool struct {
	client serverClient
	server string
	remote string
	name   string
	desc   string
	schema json.RawMessage
}

func newRemoteTool(cli serverClient, server string, t mcp.Tool) *remoteTool {
	schema, err := json.Marshal(t.InputSchema)
	if err != nil || len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return &remoteTool{
		client: cli,
		server: server,
		remote: t.Name,
		name:   server + "_" + t.Name,
		desc:   t.Description,
		schema: schema,
	}
}

// Name implements tool.Tool.
func (t *remoteTool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *remoteTool) Description() string { return t.desc }

// Schema implements tool.Tool.
func (t *remoteTool) Schema() json.RawMessage { return t.schema }

// Execute implements tool.Tool by forwarding the call to the server.
// Malformed arguments are reported to the model as a tool error rather
// than failing the turn; transport failures are real errors.
func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	var payload map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &payload); err != nil {
			return tool.ErrorOutput(fmt.Sprintf("invalid tool arguments: %v", err)), nil
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.remote
	req.Params.Arguments = payload

	res, err := t.client.CallTool(ctx, req)
	if err != nil {
		return tool.Output{}, fmt.Errorf("mcp: call %s on %s: %w", t.remote, t.server, err)
	}

	return tool.Output{
		Content: flattenContent(res.Content),
		IsError: res.IsError,
	}, nil
}

// flattenContent joins text blocks with newlines. Chat output is plain
// text, so non-text blocks collapse to a placeholder.
func flattenContent(blocks []mcp.Content) string {
	var sb strings.Builder
	for _, block := range blocks {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		switch b := block.(type) {
		case mcp.TextContent:
			sb.WriteString(b.Text)
		case *mcp.TextContent:
			sb.WriteString(b.Text)
		default:
			sb.WriteString("[non-text content]")
		}
	}
	return sb.String()
}
