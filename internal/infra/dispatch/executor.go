package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/platform"
	"toolgate/internal/infra/tasks"
)

// truncationMarker is appended to any output item cut at the per-item
// budget. Truncation is never silent.
const truncationMarker = "... [truncated]"

// Executor routes normalized calls to their execution strategy and
// classifies every outcome. Anything not explicitly classified is a failed
// status, never a swallowed error.
type Executor struct {
	api     platform.API
	tasks   *tasks.Manager
	metrics domain.Metrics
	logger  *zap.Logger

	remoteTimeout   time.Duration
	proxyTimeout    time.Duration
	maxCharsPerItem int
}

// ExecutorOptions bound remote execution.
type ExecutorOptions struct {
	RemoteTimeout   time.Duration
	ProxyTimeout    time.Duration
	MaxCharsPerItem int
}

// NewExecutor builds an executor over the platform API and task manager.
func NewExecutor(api platform.API, taskManager *tasks.Manager, metrics domain.Metrics, logger *zap.Logger, opts ExecutorOptions) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = domain.DefaultRemoteCallTimeout
	}
	if opts.ProxyTimeout <= 0 {
		opts.ProxyTimeout = domain.DefaultProxyCallTimeout
	}
	if opts.MaxCharsPerItem <= 0 {
		opts.MaxCharsPerItem = domain.DefaultMaxCharsPerItem
	}
	return &Executor{
		api:             api,
		tasks:           taskManager,
		metrics:         metrics,
		logger:          logger.Named("executor"),
		remoteTimeout:   opts.RemoteTimeout,
		proxyTimeout:    opts.ProxyTimeout,
		maxCharsPerItem: opts.MaxCharsPerItem,
	}
}

// Execute runs the call and classifies the outcome. Task-mode calls are
// acknowledged immediately and continue in the background.
func (e *Executor) Execute(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, domain.CallStatus) {
	start := time.Now()
	result, status := e.execute(ctx, call)
	if e.metrics != nil {
		e.metrics.ObserveCall(call.Tool.Name, status, time.Since(start))
	}
	return result, status
}

func (e *Executor) execute(ctx context.Context, call *domain.NormalizedCall) (result *domain.Result, status domain.CallStatus) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool execution panicked",
				zap.String("tool", call.Tool.Name),
				zap.Any("panic", r))
			result = domain.ErrorResult("The tool failed unexpectedly.")
			status = domain.CallFailed
		}
	}()

	if call.Task != nil {
		return e.startTask(call)
	}
	return e.executeInline(ctx, call)
}

func (e *Executor) startTask(call *domain.NormalizedCall) (*domain.Result, domain.CallStatus) {
	detached := call // the runner closes over the call; ctx comes from the manager
	task, err := e.tasks.Create(call.SessionID, call.Tool.Name, call.Task, func(taskCtx context.Context) (*domain.Result, domain.CallStatus) {
		return e.executeInline(taskCtx, detached)
	})
	if err != nil {
		e.logger.Error("task registration failed", zap.String("tool", call.Tool.Name), zap.Error(err))
		return domain.ErrorResult("The task could not be started."), domain.CallFailed
	}
	if e.metrics != nil {
		e.metrics.ObserveTaskStart(call.Tool.Name)
	}

	ack := domain.TextResult(fmt.Sprintf("Task %s started for tool %q. Poll it with get-task-status.", task.TaskID, call.Tool.Name))
	ack.StructuredContent = task
	ack.Meta = map[string]any{"taskId": task.TaskID}
	return ack, domain.CallSucceeded
}

func (e *Executor) executeInline(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, domain.CallStatus) {
	switch call.Tool.Kind {
	case domain.ToolKindInternal:
		return e.runInternal(ctx, call)
	case domain.ToolKindRemoteAction:
		return e.runRemoteAction(ctx, call)
	case domain.ToolKindRemoteProxy:
		return e.runProxy(ctx, call)
	default:
		e.logger.Error("unknown tool kind", zap.String("tool", call.Tool.Name), zap.String("kind", string(call.Tool.Kind)))
		return domain.ErrorResult("The tool is misconfigured."), domain.CallFailed
	}
}

func (e *Executor) runInternal(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, domain.CallStatus) {
	result, err := call.Tool.Handler(ctx, call)
	if err != nil {
		if aborted(ctx, err) {
			return nil, domain.CallAborted
		}
		if ce, ok := domain.AsCallError(err); ok && ce.Code == domain.CodeInvalidParams {
			return domain.ErrorResult(ce.Message), domain.CallSoftFail
		}
		e.logger.Error("internal tool failed", zap.String("tool", call.Tool.Name), zap.Error(err))
		return domain.ErrorResult("The tool failed unexpectedly."), domain.CallFailed
	}
	if result == nil {
		return domain.ErrorResult("The tool returned no result."), domain.CallFailed
	}

	// A status the handler set itself wins over shape-based inference.
	if result.Status != "" {
		return result, result.Status
	}
	if result.IsError {
		return result, domain.CallFailed
	}
	return result, domain.CallSucceeded
}

func (e *Executor) runRemoteAction(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, domain.CallStatus) {
	tool := call.Tool

	runCtx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	defer cancel()

	items, err := e.api.RunActorSync(runCtx, call.Token, tool.ActorFullName, call.Args, platform.RunOptions{
		MemoryMbytes: tool.MaxMemoryMbytes,
		Timeout:      e.remoteTimeout,
	})
	if err != nil {
		if aborted(ctx, err) {
			return nil, domain.CallAborted
		}
		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("actor run timed out",
				zap.String("actor", tool.ActorFullName),
				zap.Duration("timeout", e.remoteTimeout))
			return domain.ErrorResult(fmt.Sprintf("Actor %s timed out after %s.", tool.ActorFullName, e.remoteTimeout)), domain.CallFailed
		}
		var apiErr *platform.APIError
		if errors.As(err, &apiErr) && apiErr.IsClientError() {
			e.logger.Warn("actor run rejected by platform",
				zap.String("actor", tool.ActorFullName),
				zap.Int("status", apiErr.StatusCode),
				zap.String("message", apiErr.Message))
			return domain.ErrorResult(apiErr.Message), domain.CallSoftFail
		}
		e.logger.Error("actor run failed", zap.String("actor", tool.ActorFullName), zap.Error(err))
		return domain.ErrorResult(fmt.Sprintf("Actor %s failed; try again later.", tool.ActorFullName)), domain.CallFailed
	}

	content := make([]domain.Content, 0, len(items))
	for _, item := range items {
		content = append(content, domain.Content{Type: "text", Text: e.truncate(string(item))})
	}
	return &domain.Result{Content: content}, domain.CallSucceeded
}

func (e *Executor) runProxy(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, domain.CallStatus) {
	tool := call.Tool

	callCtx, cancel := context.WithTimeout(ctx, e.proxyTimeout)
	defer cancel()

	name := tool.ProxyToolName
	if name == "" {
		name = tool.Name
	}
	result, err := tool.Proxy.CallTool(callCtx, name, call.Args)
	if err != nil {
		if aborted(ctx, err) {
			return nil, domain.CallAborted
		}
		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("proxied call timed out", zap.String("tool", tool.Name), zap.Duration("timeout", e.proxyTimeout))
			return domain.ErrorResult(fmt.Sprintf("Tool %q timed out after %s.", tool.Name, e.proxyTimeout)), domain.CallFailed
		}
		e.logger.Error("proxied call failed", zap.String("tool", tool.Name), zap.Error(err))
		return domain.ErrorResult("The remote server failed to handle the call."), domain.CallFailed
	}
	if result.IsError {
		return result, domain.CallFailed
	}
	return result, domain.CallSucceeded
}

// truncate cuts one serialized item at the per-item budget, marking the cut.
func (e *Executor) truncate(text string) string {
	if len(text) <= e.maxCharsPerItem {
		return text
	}
	return text[:e.maxCharsPerItem] + truncationMarker
}

// aborted reports a cancellation originating from the caller, as opposed to
// a per-call timeout.
func aborted(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}
