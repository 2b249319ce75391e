package mcptool

import (
	"context"
	"errors"
	"testing"

	"github.com/deepnoodle-ai/callflow/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	tools    []mcp.Tool
	results  map[string]*mcp.CallToolResult
	err      error
	requests []mcp.CallToolRequest
}

func (f *fakeCaller) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeCaller) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.requests = append(f.requests, request)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[request.Params.Name], nil
}

func TestInvokeJSONResult(t *testing.T) {
	caller := &fakeCaller{results: map[string]*mcp.CallToolResult{
		"lookup_order": mcp.NewToolResultText(`{"status":"shipped","eta_days":2}`),
	}}
	tool := New("orders.lookup", "lookup_order", caller)

	result, err := tool.Invoke(context.Background(), map[string]any{"order_id": "A1"}, nil)
	require.NoError(t, err)
	require.Equal(t, "shipped", result.Variables["status"])
	require.Equal(t, float64(2), result.Variables["eta_days"])
	require.Equal(t, "lookup_order", result.Metadata["mcp_tool"])

	require.Len(t, caller.requests, 1)
	require.Equal(t, map[string]any{"order_id": "A1"}, caller.requests[0].Params.Arguments)
}

func TestInvokeTextResult(t *testing.T) {
	caller := &fakeCaller{results: map[string]*mcp.CallToolResult{
		"greet": mcp.NewToolResultText("hello"),
	}}
	result, err := New("greet", "greet", caller).Invoke(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"result": "hello"}, result.Variables)
}

func TestInvokeToolError(t *testing.T) {
	caller := &fakeCaller{results: map[string]*mcp.CallToolResult{
		"broken": mcp.NewToolResultError("database offline"),
	}}
	_, err := New("broken", "broken", caller).Invoke(context.Background(), nil, nil)
	require.ErrorContains(t, err, "database offline")

	caller = &fakeCaller{err: errors.New("transport closed")}
	_, err = New("x", "x", caller).Invoke(context.Background(), nil, nil)
	require.ErrorContains(t, err, "transport closed")
}

func TestDiscover(t *testing.T) {
	caller := &fakeCaller{tools: []mcp.Tool{
		mcp.NewTool("lookup_order"),
		mcp.NewTool("cancel_order"),
	}}
	discovered, err := Discover(context.Background(), "shop", caller)
	require.NoError(t, err)

	registry := tools.NewMemoryRegistry(discovered...)
	require.Equal(t, []string{"shop.cancel_order", "shop.lookup_order"}, registry.IDs())
}
