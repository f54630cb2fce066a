package app

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolgate/internal/buildinfo"
	"toolgate/internal/domain"
	"toolgate/internal/infra/schema"
)

// proxyConn adapts an MCP client session to the executor's proxy surface.
type proxyConn struct {
	session *mcp.ClientSession
}

// NewProxyConn wraps a connected client session as a proxy connection.
func NewProxyConn(session *mcp.ClientSession) domain.ProxyConn {
	return &proxyConn{session: session}
}

func (p *proxyConn) CallTool(ctx context.Context, name string, args map[string]any) (*domain.Result, error) {
	res, err := p.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}

	out := &domain.Result{
		IsError:           res.IsError,
		StructuredContent: res.StructuredContent,
	}
	for _, content := range res.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			out.Content = append(out.Content, domain.Content{Type: "text", Text: text.Text})
		}
	}
	return out, nil
}

func (p *proxyConn) Close() error {
	return p.session.Close()
}

// ConnectProxy opens a sub-connection to another MCP server over streamable
// HTTP and re-exports its tools through the catalog. The connection lives
// until ctx is cancelled.
func (s *Server) ConnectProxy(ctx context.Context, endpoint string) error {
	transport := &mcp.StreamableClientTransport{Endpoint: endpoint}
	client := mcp.NewClient(&mcp.Implementation{Name: serverName, Version: buildinfo.Version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect proxy %s: %w", endpoint, err)
	}
	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()
	return s.RegisterProxyTools(ctx, session)
}

// RegisterProxyTools lists the remote server's tools and publishes them as
// remote-proxy entries. Remote schemas are compiled here so proxied calls get
// the same argument validation as local ones; a tool whose schema does not
// compile is skipped.
func (s *Server) RegisterProxyTools(ctx context.Context, session *mcp.ClientSession) error {
	listed, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return fmt.Errorf("list proxy tools: %w", err)
	}

	conn := NewProxyConn(session)
	entries := make([]*domain.ToolEntry, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		input, _ := tool.InputSchema.(map[string]any)
		if input == nil {
			input = map[string]any{"type": "object"}
		}
		validator, err := schema.Compile(input)
		if err != nil {
			s.logger.Warn("proxy tool skipped", zap.String("tool", tool.Name), zap.Error(err))
			continue
		}
		entries = append(entries, &domain.ToolEntry{
			Kind:        domain.ToolKindRemoteProxy,
			Name:        tool.Name,
			Title:       tool.Title,
			Description: tool.Description,
			Category:    "proxy",
			InputSchema: input,
			Validator:   validator,

			Proxy:         conn,
			ProxyToolName: tool.Name,
		})
	}
	if len(entries) == 0 {
		return fmt.Errorf("remote server exposes no usable tools")
	}
	s.Upsert(entries)
	s.logger.Info("proxy tools registered", zap.Int("count", len(entries)))
	return nil
}
