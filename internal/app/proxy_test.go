package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newBackendSession spins up a second MCP server with one echo tool and
// returns a client session connected to it.
func newBackendSession(t *testing.T, ctx context.Context) *mcp.ClientSession {
	t.Helper()

	backend := mcp.NewServer(&mcp.Implementation{Name: "backend", Version: "0.1.0"}, &mcp.ServerOptions{HasTools: true})
	backend.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "echoes its message back",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		require.NoError(t, json.Unmarshal(req.Params.Arguments, &args))
		message, _ := args["message"].(string)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: message}},
		}, nil
	})

	ct, st := mcp.NewInMemoryTransports()
	_, err := backend.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "toolgate", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestRegisterProxyToolsReExportsRemoteTools(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())

	require.NoError(t, srv.RegisterProxyTools(ctx, newBackendSession(t, ctx)))

	entry, ok := srv.Catalog().Get("echo")
	require.True(t, ok)
	assert.Equal(t, "proxy", entry.Category)
	require.NotNil(t, entry.Proxy)
}

func TestProxiedCallRoundTrips(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	require.NoError(t, srv.RegisterProxyTools(ctx, newBackendSession(t, ctx)))

	session := connectClient(t, ctx, srv.MCP())
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "echo",
		Arguments: json.RawMessage(`{"message":"round trip"}`),
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "round trip", res.Content[0].(*mcp.TextContent).Text)
}

func TestProxiedCallValidatesBeforeForwarding(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	require.NoError(t, srv.RegisterProxyTools(ctx, newBackendSession(t, ctx)))

	session := connectClient(t, ctx, srv.MCP())
	_, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "echo",
		Arguments: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message")
}
