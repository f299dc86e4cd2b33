package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/tool"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer implements serverClient in memory, recording every request.
type fakeServer struct {
	mu sync.Mutex

	initErr  error
	initReqs []mcp.InitializeRequest

	listPages []*mcp.ListToolsResult
	listErr   error
	listReqs  []mcp.ListToolsRequest

	callRes  *mcp.CallToolResult
	callErr  error
	callReqs []mcp.CallToolRequest

	closed bool
}

func (f *fakeServer) Initialize(_ context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initReqs = append(f.initReqs, req)
	if f.initErr != nil {
		return nil, f.initErr
	}
	res := &mcp.InitializeResult{}
	res.ServerInfo = mcp.Implementation{Name: "fake-server", Version: "0.0.1"}
	return res, nil
}

func (f *fakeServer) ListTools(_ context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listReqs = append(f.listReqs, req)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.listPages) == 0 {
		return &mcp.ListToolsResult{}, nil
	}
	page := f.listPages[0]
	f.listPages = f.listPages[1:]
	return page, nil
}

func (f *fakeServer) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callReqs = append(f.callReqs, req)
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.callRes != nil {
		return f.callRes, nil
	}
	return &mcp.CallToolResult{}, nil
}

func (f *fakeServer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeServer) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func toolPage(cursor string, tools ...mcp.Tool) *mcp.ListToolsResult {
	res := &mcp.ListToolsResult{Tools: tools}
	res.NextCursor = mcp.Cursor(cursor)
	return res
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

// swapConnector replaces the server launcher for the duration of a test.
func swapConnector(t *testing.T, fn func(command string, env []string, args []string) (serverClient, error)) {
	t.Helper()
	orig := newServerClient
	newServerClient = fn
	t.Cleanup(func() { newServerClient = orig })
}

func configureModule(t *testing.T, m *Module, cfgYAML string) {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(cfgYAML), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	// yaml.Unmarshal wraps in a document node; pass the first child.
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
}

func newTestAppContext(t *testing.T, registry *tool.Registry) *core.AppContext {
	t.Helper()
	appCtx := core.NewAppContext(discardLogger(), t.TempDir(), t.TempDir())
	appCtx.RegisterService("tool.registry", registry)
	return appCtx
}

// staticTool is a minimal local tool for registry coexistence tests.
type staticTool struct {
	name string
}

func (s staticTool) Name() string            { return s.name }
func (s staticTool) Description() string     { return "static test tool" }
func (s staticTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (s staticTool) Execute(context.Context, json.RawMessage) (tool.Output, error) {
	return tool.Output{Content: "ok"}, nil
}
