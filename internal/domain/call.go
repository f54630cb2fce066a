package domain

// CallStatus classifies the outcome of one tool call for telemetry and
// logging. Statuses map onto the caller-facing taxonomy: user/client errors
// are soft-fail, server-side or unexpected errors are failed, transport
// cancellation is aborted.
type CallStatus string

const (
	CallSucceeded CallStatus = "succeeded"
	CallSoftFail  CallStatus = "soft-fail"
	CallFailed    CallStatus = "failed"
	CallAborted   CallStatus = "aborted"
)

// TaskRequest asks for long-running-task execution instead of an inline
// result. TTL is in milliseconds.
type TaskRequest struct {
	TTL *int64 `json:"ttl,omitempty"`
}

// CallMeta is the per-call metadata attached by the transport.
type CallMeta struct {
	ProgressToken any
	Token         string
	SessionID     string
	Entitlements  []string
}

// CallRequest is a raw, transport-decoded tool call.
type CallRequest struct {
	Name      string
	Arguments map[string]any
	Meta      CallMeta
	Task      *TaskRequest
}

// NormalizedCall is a validated call, ready to execute.
type NormalizedCall struct {
	Tool          *ToolEntry
	Args          map[string]any
	Token         string
	UserID        string
	SessionID     string
	ProgressToken any
	Entitlements  map[string]struct{}
	Task          *TaskRequest
}

// Entitled reports whether the session already holds the given remote
// resource (e.g. a rented actor), bypassing availability filters.
func (c *NormalizedCall) Entitled(id string) bool {
	_, ok := c.Entitlements[id]
	return ok
}

// Content is one response element.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the outcome of one tool execution, transport-agnostic. Status,
// when set by an internal handler, takes precedence over shape-based
// inference.
type Result struct {
	Content           []Content
	StructuredContent any
	IsError           bool
	Meta              map[string]any
	Status            CallStatus
}

// TextResult builds a single-element text result.
func TextResult(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult builds a single-element error-marked result.
func ErrorResult(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}, IsError: true}
}
