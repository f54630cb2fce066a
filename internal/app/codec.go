package app

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"toolgate/internal/domain"
)

// toolToMCP converts a catalog entry to its wire representation.
func toolToMCP(entry *domain.ToolEntry) mcp.Tool {
	tool := mcp.Tool{
		Name:        entry.Name,
		Title:       entry.Title,
		Description: entry.Description,
		InputSchema: entry.InputSchema,
	}
	// A nil map stored in the SDK's any-typed field would be a non-nil
	// interface, which AddTool rejects; only set it when a schema exists.
	if entry.OutputSchema != nil {
		tool.OutputSchema = entry.OutputSchema
	}
	if tool.InputSchema == nil {
		tool.InputSchema = map[string]any{"type": "object"}
	}
	if entry.Annotations != nil {
		ann := &mcp.ToolAnnotations{
			ReadOnlyHint:   entry.Annotations.ReadOnlyHint,
			IdempotentHint: entry.Annotations.IdempotentHint,
		}
		if entry.Annotations.OpenWorldHint {
			open := true
			ann.OpenWorldHint = &open
		}
		tool.Annotations = ann
	}
	if entry.Category != "" {
		tool.Meta = mcp.Meta{"category": entry.Category}
	}
	return tool
}

// resultToMCP converts an execution result to the wire shape. The internal
// call status travels in _meta so clients that care can distinguish a
// soft-fail from a hard failure.
func resultToMCP(result *domain.Result) *mcp.CallToolResult {
	out := &mcp.CallToolResult{
		IsError:           result.IsError,
		StructuredContent: result.StructuredContent,
	}
	for _, content := range result.Content {
		out.Content = append(out.Content, &mcp.TextContent{Text: content.Text})
	}
	if len(out.Content) == 0 {
		out.Content = []mcp.Content{&mcp.TextContent{Text: ""}}
	}
	meta := mcp.Meta{}
	for k, v := range result.Meta {
		meta[k] = v
	}
	if result.Status != "" {
		meta["status"] = string(result.Status)
	}
	if len(meta) > 0 {
		out.Meta = meta
	}
	return out
}

// callRequestFromMCP decodes the wire request into the transport-neutral call
// shape. Arguments may legitimately be absent; the validator rejects that
// case with guidance, so no error here.
func callRequestFromMCP(name string, req *mcp.CallToolRequest, sessionID string) (*domain.CallRequest, error) {
	call := &domain.CallRequest{Name: name}
	call.Meta.SessionID = sessionID

	if len(req.Params.Arguments) > 0 {
		var args map[string]any
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		call.Arguments = args
	}

	for key, value := range req.Params.Meta {
		switch key {
		case "progressToken":
			call.Meta.ProgressToken = value
		case "token", "apifyToken":
			if token, ok := value.(string); ok {
				call.Meta.Token = token
			}
		case "entitlements":
			call.Meta.Entitlements = stringSlice(value)
		case "task":
			call.Task = taskRequest(value)
		}
	}
	return call, nil
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func taskRequest(value any) *domain.TaskRequest {
	obj, ok := value.(map[string]any)
	if !ok {
		return &domain.TaskRequest{}
	}
	req := &domain.TaskRequest{}
	if raw, ok := obj["ttl"]; ok {
		if ttl, ok := asInt64(raw); ok {
			req.TTL = &ttl
		}
	}
	return req
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
