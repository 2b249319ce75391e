// Package mcptool exposes the tools of a Model Context Protocol server
// through the tool registry.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/callflow/tools"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Caller is the subset of an MCP client used by this package.
type Caller interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

var _ tools.Tool = (*Tool)(nil)

// Tool invokes one remote MCP tool.
type Tool struct {
	id     string
	name   string
	caller Caller
}

// New returns a Tool registered as id that calls the remote tool name.
func New(id, name string, caller Caller) *Tool {
	return &Tool{id: id, name: name, caller: caller}
}

func (t *Tool) ID() string {
	return t.id
}

// Invoke calls the remote tool with params as arguments. A JSON object reply
// becomes the output variables; any other text is returned as "result".
func (t *Tool) Invoke(ctx context.Context, params map[string]any, vars map[string]any) (*tools.Result, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = params
	res, err := t.caller.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %q: %w", t.name, err)
	}
	text := resultText(res)
	if res.IsError {
		return nil, fmt.Errorf("mcp tool %q failed: %s", t.name, text)
	}
	result := &tools.Result{Metadata: map[string]any{"mcp_tool": t.name}}
	var object map[string]any
	if err := json.Unmarshal([]byte(text), &object); err == nil {
		result.Variables = object
	} else {
		result.Variables = map[string]any{"result": text}
	}
	return result, nil
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Discover lists the server's tools and wraps each as a Tool with id
// prefix.name.
func Discover(ctx context.Context, prefix string, caller Caller) ([]tools.Tool, error) {
	res, err := caller.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list mcp tools: %w", err)
	}
	out := make([]tools.Tool, 0, len(res.Tools))
	for _, tool := range res.Tools {
		id := tool.Name
		if prefix != "" {
			id = prefix + "." + tool.Name
		}
		out = append(out, New(id, tool.Name, caller))
	}
	return out, nil
}

// DialStdio launches an MCP server subprocess and initializes a session
// with it. The caller must Close the returned client.
func DialStdio(ctx context.Context, command string, env []string, args ...string) (*client.Client, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start mcp server %q: %w", command, err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "callflow", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize mcp server %q: %w", command, err)
	}
	return c, nil
}
