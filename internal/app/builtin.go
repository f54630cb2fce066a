package app

import (
	"context"
	"fmt"
	"strings"

	"toolgate/internal/domain"
	"toolgate/internal/infra/schema"
)

const (
	categoryBuiltin = "builtin"
	categoryActor   = "actor"

	searchDefaultLimit = 10
	searchMaxLimit     = 100
)

// builtinTools returns the management tools that ship with the server.
// They go through the same validation pipeline as every other tool.
func (s *Server) builtinTools() []*domain.ToolEntry {
	addActorSchema := objectSchema(map[string]any{
		"actor": map[string]any{"type": "string", "description": "Actor full name (user/name) or id."},
	}, "actor")
	removeActorSchema := objectSchema(map[string]any{
		"tool": map[string]any{"type": "string", "description": "Tool name or actor full name."},
	}, "tool")
	detailsSchema := objectSchema(map[string]any{
		"actor": map[string]any{"type": "string", "description": "Actor full name (user/name) or id."},
	}, "actor")
	searchSchema := objectSchema(map[string]any{
		"query":  map[string]any{"type": "string", "description": "Search phrase."},
		"limit":  map[string]any{"type": "integer", "description": "Maximum results, up to 100.", "default": searchDefaultLimit},
		"offset": map[string]any{"type": "integer", "description": "Results to skip.", "default": 0},
	}, "query")
	taskSchema := objectSchema(map[string]any{
		"taskId": map[string]any{"type": "string", "description": "Task id from the start acknowledgement."},
	}, "taskId")

	return []*domain.ToolEntry{
		{
			Kind:        domain.ToolKindInternal,
			Name:        "add-actor",
			Title:       "Add Actor",
			Description: "Load a remote actor's definition and register it as a callable tool. Accepts the actor's full name, e.g. \"apify/rag-web-browser\".",
			Category:    categoryBuiltin,
			InputSchema: addActorSchema,
			Validator:   mustCompile(addActorSchema),
			Handler:     s.handleAddActor,
		},
		{
			Kind:        domain.ToolKindInternal,
			Name:        "remove-actor",
			Title:       "Remove Actor",
			Description: "Unregister a previously added actor tool by tool name or actor full name.",
			Category:    categoryBuiltin,
			InputSchema: removeActorSchema,
			Validator:   mustCompile(removeActorSchema),
			Annotations: &domain.Annotations{IdempotentHint: true},
			Handler:     s.handleRemoveActor,
		},
		{
			Kind:        domain.ToolKindInternal,
			Name:        "fetch-actor-details",
			Title:       "Fetch Actor Details",
			Description: "Look up an actor's description and input schema without registering it.",
			Category:    categoryBuiltin,
			InputSchema: detailsSchema,
			Validator:   mustCompile(detailsSchema),
			Annotations: &domain.Annotations{ReadOnlyHint: true, IdempotentHint: true},
			Handler:     s.handleFetchActorDetails,
		},
		{
			Kind:        domain.ToolKindInternal,
			Name:        "search-actors",
			Title:       "Search Actors",
			Description: "Full-text search over the public actor store.",
			Category:    categoryBuiltin,
			InputSchema: searchSchema,
			Validator:   mustCompile(searchSchema),
			Annotations: &domain.Annotations{ReadOnlyHint: true},
			Handler:     s.handleSearchActors,
		},
		{
			Kind:        domain.ToolKindInternal,
			Name:        "get-task-status",
			Title:       "Get Task Status",
			Description: "Poll a long-running task started by this session.",
			Category:    categoryBuiltin,
			InputSchema: taskSchema,
			Validator:   mustCompile(taskSchema),
			Annotations: &domain.Annotations{ReadOnlyHint: true, IdempotentHint: true},
			Handler:     s.handleGetTaskStatus,
		},
		{
			Kind:        domain.ToolKindInternal,
			Name:        "cancel-task",
			Title:       "Cancel Task",
			Description: "Cancel a running task started by this session.",
			Category:    categoryBuiltin,
			InputSchema: taskSchema,
			Validator:   mustCompile(taskSchema),
			Handler:     s.handleCancelTask,
		},
	}
}

func (s *Server) handleAddActor(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
	name := stringArg(call.Args, "actor")
	entitlements := make([]string, 0, len(call.Entitlements))
	for e := range call.Entitlements {
		entitlements = append(entitlements, e)
	}

	accepted, err := s.LoadActors(ctx, call.Token, []string{name}, entitlements)
	if err != nil {
		return nil, domain.NewInvalidParams("actor %q could not be added: %v", name, err)
	}
	entry := accepted[0]
	return domain.TextResult(fmt.Sprintf("Actor %s is now available as tool %q.", entry.ActorFullName, entry.Name)), nil
}

func (s *Server) handleRemoveActor(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
	identifier := stringArg(call.Args, "tool")

	entry, ok := s.catalog.Resolve(identifier)
	if !ok {
		// Idempotent: removing an unknown tool succeeds quietly.
		return domain.TextResult(fmt.Sprintf("Tool %q was not registered.", identifier)), nil
	}
	if entry.Category != categoryActor {
		return nil, domain.NewInvalidParams("tool %q is built in and cannot be removed", entry.Name)
	}
	s.Remove(entry.Name)
	return domain.TextResult(fmt.Sprintf("Tool %q removed.", entry.Name)), nil
}

func (s *Server) handleFetchActorDetails(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
	name := stringArg(call.Args, "actor")

	actorID, err := s.caches.ActorID(ctx, call.Token, name)
	if err != nil {
		return nil, domain.NewInvalidParams("actor %q not found: %v", name, err)
	}
	def, err := s.caches.Definition(ctx, call.Token, actorID)
	if err != nil {
		return nil, fmt.Errorf("fetch definition for %q: %w", name, err)
	}

	result := domain.TextResult(fmt.Sprintf("%s: %s", def.Actor.FullName(), def.Actor.Description))
	result.StructuredContent = map[string]any{
		"actor":       def.Actor.FullName(),
		"title":       def.Actor.Title,
		"description": def.Actor.Description,
		"rental":      def.Actor.Rental,
		"inputSchema": def.Input,
	}
	return result, nil
}

func (s *Server) handleSearchActors(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
	query := stringArg(call.Args, "query")
	limit := intArg(call.Args, "limit", searchDefaultLimit)
	if limit > searchMaxLimit {
		limit = searchMaxLimit
	}
	offset := intArg(call.Args, "offset", 0)

	actors, err := s.api.SearchActors(ctx, call.Token, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search actors: %w", err)
	}

	if len(actors) == 0 {
		return domain.TextResult(fmt.Sprintf("No actors matched %q.", query)), nil
	}

	lines := make([]string, 0, len(actors))
	items := make([]map[string]any, 0, len(actors))
	for _, actor := range actors {
		lines = append(lines, fmt.Sprintf("- %s: %s", actor.FullName(), actor.Description))
		items = append(items, map[string]any{
			"actor":       actor.FullName(),
			"title":       actor.Title,
			"description": actor.Description,
		})
	}
	result := domain.TextResult(strings.Join(lines, "\n"))
	result.StructuredContent = map[string]any{"actors": items}
	return result, nil
}

func (s *Server) handleGetTaskStatus(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
	taskID := stringArg(call.Args, "taskId")

	task, ok := s.tasks.Get(call.SessionID, taskID)
	if !ok {
		return nil, domain.NewInvalidParams("task %q not found for this session", taskID)
	}
	result := domain.TextResult(fmt.Sprintf("Task %s is %s.", task.TaskID, task.Status))
	result.StructuredContent = task
	return result, nil
}

func (s *Server) handleCancelTask(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
	taskID := stringArg(call.Args, "taskId")

	if err := s.tasks.Cancel(call.SessionID, taskID); err != nil {
		return nil, domain.NewInvalidParams("task %q could not be cancelled: %v", taskID, err)
	}
	return domain.TextResult(fmt.Sprintf("Task %s cancelled.", taskID)), nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func mustCompile(input map[string]any) domain.ArgumentValidator {
	validator, err := schema.Compile(input)
	if err != nil {
		panic(fmt.Sprintf("builtin tool schema: %v", err))
	}
	return validator
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return strings.TrimSpace(value)
}

func intArg(args map[string]any, key string, fallback int) int {
	if raw, ok := args[key]; ok {
		if n, ok := asInt64(raw); ok && n > 0 {
			return int(n)
		}
	}
	return fallback
}
