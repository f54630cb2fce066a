package app

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/platform"
)

type fakeAPI struct {
	actors      map[string]*platform.Actor
	definitions map[string]*platform.ActorDefinition
	runItems    []json.RawMessage
	runErr      error
	searched    []platform.Actor
}

func (f *fakeAPI) GetActor(ctx context.Context, token, actorID string) (*platform.Actor, error) {
	for _, actor := range f.actors {
		if actor.ID == actorID || actor.FullName() == actorID {
			return actor, nil
		}
	}
	return nil, &platform.APIError{StatusCode: 404, Message: fmt.Sprintf("actor %q not found", actorID)}
}

func (f *fakeAPI) GetActorDefinition(ctx context.Context, token, actorID string) (*platform.ActorDefinition, error) {
	if def, ok := f.definitions[actorID]; ok {
		return def, nil
	}
	return nil, &platform.APIError{StatusCode: 404, Message: fmt.Sprintf("definition %q not found", actorID)}
}

func (f *fakeAPI) GetCurrentUser(ctx context.Context, token string) (*platform.User, error) {
	return &platform.User{ID: "user-1", Username: "tester"}, nil
}

func (f *fakeAPI) RunActorSync(ctx context.Context, token, actorID string, input map[string]any, opts platform.RunOptions) ([]json.RawMessage, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.runItems, nil
}

func (f *fakeAPI) SearchActors(ctx context.Context, token, query string, limit, offset int) ([]platform.Actor, error) {
	return f.searched, nil
}

func newFakeAPI() *fakeAPI {
	actor := &platform.Actor{
		ID:          "act-1",
		Name:        "web-scraper",
		Username:    "acme",
		Title:       "Web Scraper",
		Description: "Scrapes pages.",
		Public:      true,
	}
	return &fakeAPI{
		actors: map[string]*platform.Actor{"acme/web-scraper": actor},
		definitions: map[string]*platform.ActorDefinition{
			"act-1": {
				Actor: *actor,
				Input: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"url": map[string]any{"type": "string"},
					},
					"required": []string{"url"},
				},
				DefaultRunMemoryMbytes: 1024,
			},
		},
		runItems: []json.RawMessage{json.RawMessage(`{"title":"ok"}`)},
	}
}

func testConfig() domain.Config {
	return domain.Config{
		Token:             "test-token",
		PlatformBaseURL:   domain.DefaultPlatformBaseURL,
		Transport:         "stdio",
		RemoteCallTimeout: domain.DefaultRemoteCallTimeout,
		ProxyCallTimeout:  domain.DefaultProxyCallTimeout,
		MaxCharsPerItem:   domain.DefaultMaxCharsPerItem,
		MaxMemoryMbytes:   domain.DefaultMaxMemoryMbytes,
	}
}

func connectClient(t *testing.T, ctx context.Context, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ct, st := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func toolNames(t *testing.T, ctx context.Context, session *mcp.ClientSession) []string {
	t.Helper()
	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestServerAdvertisesBuiltins(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	session := connectClient(t, ctx, srv.MCP())

	names := toolNames(t, ctx, session)
	assert.Contains(t, names, "add-actor")
	assert.Contains(t, names, "remove-actor")
	assert.Contains(t, names, "fetch-actor-details")
	assert.Contains(t, names, "search-actors")
	assert.Contains(t, names, "get-task-status")
	assert.Contains(t, names, "cancel-task")
}

func TestServerListReflectsLoadAndRemove(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	session := connectClient(t, ctx, srv.MCP())

	accepted, err := srv.LoadActors(ctx, "test-token", []string{"acme/web-scraper"}, nil)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Contains(t, toolNames(t, ctx, session), "acme--web-scraper")

	require.True(t, srv.Remove("acme--web-scraper"))
	assert.NotContains(t, toolNames(t, ctx, session), "acme--web-scraper")
}

func TestServerCallActorTool(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	_, err := srv.LoadActors(ctx, "test-token", []string{"acme/web-scraper"}, nil)
	require.NoError(t, err)

	session := connectClient(t, ctx, srv.MCP())
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "acme--web-scraper",
		Arguments: json.RawMessage(`{"url":"https://example.com"}`),
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text := res.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, `"title":"ok"`)
}

func TestServerInvalidArgumentsAreProtocolErrors(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	_, err := srv.LoadActors(ctx, "test-token", []string{"acme/web-scraper"}, nil)
	require.NoError(t, err)

	session := connectClient(t, ctx, srv.MCP())
	_, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "acme--web-scraper",
		Arguments: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestServerAddActorToolRegistersActor(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	session := connectClient(t, ctx, srv.MCP())

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "add-actor",
		Arguments: json.RawMessage(`{"actor":"acme/web-scraper"}`),
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, toolNames(t, ctx, session), "acme--web-scraper")
}

func TestServerRemoveActorToolRejectsBuiltins(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	session := connectClient(t, ctx, srv.MCP())

	_, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "remove-actor",
		Arguments: json.RawMessage(`{"tool":"add-actor"}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "built in")
}

func TestServerUnknownTaskIsInvalidParams(t *testing.T) {
	ctx := context.Background()
	srv := New(testConfig(), newFakeAPI(), nil, zap.NewNop())
	session := connectClient(t, ctx, srv.MCP())

	_, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get-task-status",
		Arguments: json.RawMessage(`{"taskId":"nope"}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestServerRentalActorNotLoadedByDefault(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	rental := &platform.Actor{
		ID:       "act-2",
		Name:     "premium-scraper",
		Username: "acme",
		Public:   true,
		Rental:   true,
	}
	api.actors["acme/premium-scraper"] = rental
	api.definitions["act-2"] = &platform.ActorDefinition{
		Actor: *rental,
		Input: map[string]any{"type": "object"},
	}

	srv := New(testConfig(), api, nil, zap.NewNop())
	_, err := srv.LoadActors(ctx, "test-token", []string{"acme/premium-scraper"}, nil)
	require.Error(t, err)

	// Entitled sessions and rental-enabled deployments may load it.
	accepted, err := srv.LoadActors(ctx, "test-token", []string{"acme/premium-scraper"}, []string{"acme/premium-scraper"})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
}
