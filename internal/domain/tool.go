package domain

import "context"

// ToolKind discriminates the ToolEntry union.
type ToolKind string

const (
	// ToolKindInternal tools run a local Go handler in-process.
	ToolKindInternal ToolKind = "internal"

	// ToolKindRemoteAction tools proxy a platform actor run. The entry
	// carries the actor's full name and a memory budget; execution always
	// goes through the platform client.
	ToolKindRemoteAction ToolKind = "remote-action"

	// ToolKindRemoteProxy tools were discovered on another MCP server and
	// forward calls over a held sub-session.
	ToolKindRemoteProxy ToolKind = "remote-proxy"
)

// TaskSupport declares whether a tool may be invoked as a long-running task.
type TaskSupport string

const (
	TaskSupportNone     TaskSupport = "none"
	TaskSupportOptional TaskSupport = "optional"
	TaskSupportRequired TaskSupport = "required"
)

// ExecutionDescriptor captures how a tool is allowed to execute.
type ExecutionDescriptor struct {
	TaskSupport TaskSupport `json:"taskSupport"`
}

// Annotations carries client-facing behavior hints.
type Annotations struct {
	ReadOnlyHint   bool `json:"readOnlyHint,omitempty"`
	IdempotentHint bool `json:"idempotentHint,omitempty"`
	OpenWorldHint  bool `json:"openWorldHint,omitempty"`
}

// SchemaViolation describes one failed schema check on a call's arguments.
type SchemaViolation struct {
	Path   string
	Reason string
}

// ArgumentValidator is a compiled input schema. It is produced once at
// registration time and stored on the entry, never rebuilt per call.
type ArgumentValidator func(args map[string]any) []SchemaViolation

// InternalHandler executes an internal tool.
type InternalHandler func(ctx context.Context, call *NormalizedCall) (*Result, error)

// ProxyConn is a sub-session to another MCP server that remote-proxy
// tools forward calls through.
type ProxyConn interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*Result, error)
	Close() error
}

// ToolEntry is one catalog record. Kind selects the variant; variant-only
// fields are nil/zero on the others.
type ToolEntry struct {
	Kind        ToolKind
	Name        string
	Title       string
	Description string
	Category    string

	InputSchema  map[string]any
	OutputSchema map[string]any
	Validator    ArgumentValidator
	Annotations  *Annotations
	Execution    ExecutionDescriptor

	// Internal
	Handler InternalHandler

	// RemoteAction
	ActorFullName   string
	MaxMemoryMbytes int

	// RemoteProxy
	Proxy         ProxyConn
	ProxyToolName string
}

// SupportsTasks reports whether task-mode invocation is permitted.
func (t *ToolEntry) SupportsTasks() bool {
	return t.Execution.TaskSupport == TaskSupportOptional || t.Execution.TaskSupport == TaskSupportRequired
}
