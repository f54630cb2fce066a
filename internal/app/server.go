// Package app wires the catalog, validator, executor and task manager behind
// an MCP server and keeps the advertised tool list in sync with the catalog.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolgate/internal/buildinfo"
	"toolgate/internal/domain"
	"toolgate/internal/infra/dispatch"
	"toolgate/internal/infra/platform"
	"toolgate/internal/infra/registry"
	"toolgate/internal/infra/tasks"
)

const serverName = "toolgate"

// Server owns the MCP boundary: it translates wire requests into calls,
// runs them through the validator and executor, and mirrors every catalog
// change into the SDK server so connected clients get list_changed.
type Server struct {
	cfg       domain.Config
	logger    *zap.Logger
	metrics   domain.Metrics
	api       platform.API
	caches    *platform.Caches
	catalog   *registry.Catalog
	tasks     *tasks.Manager
	validator *dispatch.Validator
	executor  *dispatch.Executor
	mcp       *mcp.Server

	mu         sync.Mutex
	registered map[string]struct{}

	// stdio and in-memory transports hand out empty session ids; each such
	// session gets a uuid so task ownership still works.
	fallbackIDs sync.Map // *mcp.ServerSession -> string
}

// New assembles a server from configuration. metrics may be nil.
func New(cfg domain.Config, api platform.API, metrics domain.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog := registry.NewCatalog(logger)
	caches := platform.NewCaches(api, metrics, logger)
	taskManager := tasks.NewManager(logger)

	s := &Server{
		cfg:     cfg,
		logger:  logger.Named("server"),
		metrics: metrics,
		api:     api,
		caches:  caches,
		catalog: catalog,
		tasks:   taskManager,
		validator: dispatch.NewValidator(catalog, caches, dispatch.Policy{
			Token:                cfg.Token,
			AllowUnauthenticated: cfg.AllowUnauthenticated,
		}, logger),
		executor: dispatch.NewExecutor(api, taskManager, metrics, logger, dispatch.ExecutorOptions{
			RemoteTimeout:   cfg.RemoteCallTimeout,
			ProxyTimeout:    cfg.ProxyCallTimeout,
			MaxCharsPerItem: cfg.MaxCharsPerItem,
		}),
		registered: make(map[string]struct{}),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: buildinfo.Version,
	}, &mcp.ServerOptions{HasTools: true})

	s.catalog.Upsert(s.builtinTools())
	s.syncTools()
	return s
}

// Catalog exposes the tool catalog, mainly for built-in tools and tests.
func (s *Server) Catalog() *registry.Catalog { return s.catalog }

// Tasks exposes the task manager.
func (s *Server) Tasks() *tasks.Manager { return s.tasks }

// MCP returns the underlying SDK server for transport hookup.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Upsert publishes catalog entries and mirrors the change to clients.
func (s *Server) Upsert(entries []*domain.ToolEntry) []*domain.ToolEntry {
	accepted := s.catalog.Upsert(entries)
	s.syncTools()
	return accepted
}

// Remove drops a tool by name. Removing an unknown name is a no-op.
func (s *Server) Remove(name string) bool {
	removed := s.catalog.Remove(name)
	if removed {
		s.syncTools()
	}
	return removed
}

// syncTools reconciles the SDK server's advertised tools with the catalog.
// AddTool replaces entries in place; anything registered before but absent
// now is removed, which triggers a single list_changed notification.
func (s *Server) syncTools() {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]struct{})
	for _, entry := range s.catalog.List() {
		tool := toolToMCP(entry)
		s.mcp.AddTool(&tool, s.toolHandler(tool.Name))
		next[tool.Name] = struct{}{}
	}

	var remove []string
	for name := range s.registered {
		if _, ok := next[name]; !ok {
			remove = append(remove, name)
		}
	}
	if len(remove) > 0 {
		s.mcp.RemoveTools(remove...)
	}

	s.registered = next
	if s.metrics != nil {
		s.metrics.SetCatalogSize(len(next))
	}
}

func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call, err := callRequestFromMCP(name, req, s.sessionID(req.Session))
		if err != nil {
			return nil, &jsonrpc.Error{Code: int64(domain.CodeInvalidParams), Message: err.Error()}
		}

		normalized, err := s.validator.Validate(ctx, call)
		if err != nil {
			return nil, rpcError(err)
		}

		result, status := s.executor.Execute(ctx, normalized)
		s.logger.Debug("tool call finished",
			zap.String("tool", normalized.Tool.Name),
			zap.String("status", string(status)))
		return resultToMCP(result), nil
	}
}

func (s *Server) sessionID(session *mcp.ServerSession) string {
	if session == nil {
		return ""
	}
	if id := session.ID(); id != "" {
		return id
	}
	if id, ok := s.fallbackIDs.Load(session); ok {
		return id.(string)
	}
	id, _ := s.fallbackIDs.LoadOrStore(session, uuid.NewString())
	return id.(string)
}

// rpcError maps validation failures to protocol errors. Anything that is
// not an explicit call error is an internal fault.
func rpcError(err error) error {
	if ce, ok := domain.AsCallError(err); ok {
		return &jsonrpc.Error{Code: int64(ce.Code), Message: ce.Message}
	}
	if errors.Is(err, domain.ErrMissingSession) {
		return &jsonrpc.Error{Code: int64(domain.CodeInternal), Message: "no session associated with the request"}
	}
	return &jsonrpc.Error{Code: int64(domain.CodeInternal), Message: fmt.Sprintf("internal error: %v", err)}
}
