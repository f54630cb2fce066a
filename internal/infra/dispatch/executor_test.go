package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/platform"
	"toolgate/internal/infra/tasks"
)

type fakeRunner struct {
	items []json.RawMessage
	err   error

	gotActor  string
	gotInput  map[string]any
	gotMemory int
}

func (f *fakeRunner) GetActor(ctx context.Context, token, actorID string) (*platform.Actor, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRunner) GetActorDefinition(ctx context.Context, token, actorID string) (*platform.ActorDefinition, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRunner) GetCurrentUser(ctx context.Context, token string) (*platform.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRunner) RunActorSync(ctx context.Context, token, actorID string, input map[string]any, opts platform.RunOptions) ([]json.RawMessage, error) {
	f.gotActor = actorID
	f.gotInput = input
	f.gotMemory = opts.MemoryMbytes
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.items, f.err
}

func (f *fakeRunner) SearchActors(ctx context.Context, token, query string, limit, offset int) ([]platform.Actor, error) {
	return nil, errors.New("not implemented")
}

type blockingProxy struct{}

func (blockingProxy) CallTool(ctx context.Context, name string, args map[string]any) (*domain.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProxy) Close() error { return nil }

func newTestExecutor(api platform.API, opts ExecutorOptions) *Executor {
	return NewExecutor(api, tasks.NewManager(zap.NewNop()), nil, zap.NewNop(), opts)
}

func normalizedCall(tool *domain.ToolEntry) *domain.NormalizedCall {
	return &domain.NormalizedCall{
		Tool:      tool,
		Args:      map[string]any{},
		Token:     "tok",
		SessionID: "sess-1",
	}
}

func TestExecute_InternalSucceeds(t *testing.T) {
	e := newTestExecutor(&fakeRunner{}, ExecutorOptions{})
	tool := &domain.ToolEntry{
		Kind: domain.ToolKindInternal,
		Name: "echo",
		Handler: func(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
			return domain.TextResult("hello"), nil
		},
	}

	result, status := e.Execute(context.Background(), normalizedCall(tool))
	assert.Equal(t, domain.CallSucceeded, status)
	assert.Equal(t, "hello", result.Content[0].Text)
}

func TestExecute_HandlerStatusTakesPrecedence(t *testing.T) {
	e := newTestExecutor(&fakeRunner{}, ExecutorOptions{})
	tool := &domain.ToolEntry{
		Kind: domain.ToolKindInternal,
		Name: "flaky",
		Handler: func(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
			res := domain.ErrorResult("user mistake")
			res.Status = domain.CallSoftFail
			return res, nil
		},
	}

	_, status := e.Execute(context.Background(), normalizedCall(tool))
	assert.Equal(t, domain.CallSoftFail, status, "handler-signalled status must win over shape inference")
}

func TestExecute_InternalErrorResultInfersFailed(t *testing.T) {
	e := newTestExecutor(&fakeRunner{}, ExecutorOptions{})
	tool := &domain.ToolEntry{
		Kind: domain.ToolKindInternal,
		Name: "broken",
		Handler: func(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
			return domain.ErrorResult("something"), nil
		},
	}

	_, status := e.Execute(context.Background(), normalizedCall(tool))
	assert.Equal(t, domain.CallFailed, status)
}

func TestExecute_InternalPanicIsFailed(t *testing.T) {
	e := newTestExecutor(&fakeRunner{}, ExecutorOptions{})
	tool := &domain.ToolEntry{
		Kind: domain.ToolKindInternal,
		Name: "panicky",
		Handler: func(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
			panic("boom")
		},
	}

	result, status := e.Execute(context.Background(), normalizedCall(tool))
	assert.Equal(t, domain.CallFailed, status)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestExecute_RemoteActionTruncatesPerItem(t *testing.T) {
	long := strings.Repeat("x", 200)
	api := &fakeRunner{items: []json.RawMessage{
		json.RawMessage(`"one"`),
		json.RawMessage(`"two"`),
		json.RawMessage(`"` + long + `"`),
		json.RawMessage(`"four"`),
		json.RawMessage(`"five"`),
	}}
	e := newTestExecutor(api, ExecutorOptions{MaxCharsPerItem: 100})

	tool := &domain.ToolEntry{
		Kind:            domain.ToolKindRemoteAction,
		Name:            "acme--scraper",
		ActorFullName:   "acme/scraper",
		MaxMemoryMbytes: 1024,
	}
	result, status := e.Execute(context.Background(), normalizedCall(tool))
	require.Equal(t, domain.CallSucceeded, status)
	require.Len(t, result.Content, 5)

	assert.True(t, strings.HasSuffix(result.Content[2].Text, truncationMarker), "oversized item must end with the truncation marker")
	assert.Len(t, result.Content[2].Text, 100+len(truncationMarker))
	for _, i := range []int{0, 1, 3, 4} {
		assert.False(t, strings.Contains(result.Content[i].Text, truncationMarker), "item %d must be untouched", i)
	}

	assert.Equal(t, "acme/scraper", api.gotActor)
	assert.Equal(t, 1024, api.gotMemory)
}

func TestExecute_RemoteClientErrorIsSoftFail(t *testing.T) {
	api := &fakeRunner{err: &platform.APIError{StatusCode: 400, Message: "Field maxResults must be a positive integer"}}
	e := newTestExecutor(api, ExecutorOptions{})

	tool := &domain.ToolEntry{Kind: domain.ToolKindRemoteAction, Name: "a", ActorFullName: "acme/a"}
	result, status := e.Execute(context.Background(), normalizedCall(tool))
	assert.Equal(t, domain.CallSoftFail, status)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "maxResults", "platform message must pass through")
}

func TestExecute_RemoteServerErrorIsFailed(t *testing.T) {
	api := &fakeRunner{err: &platform.APIError{StatusCode: 502, Message: "bad gateway"}}
	e := newTestExecutor(api, ExecutorOptions{})

	tool := &domain.ToolEntry{Kind: domain.ToolKindRemoteAction, Name: "a", ActorFullName: "acme/a"}
	result, status := e.Execute(context.Background(), normalizedCall(tool))
	assert.Equal(t, domain.CallFailed, status)
	assert.NotContains(t, result.Content[0].Text, "bad gateway", "server errors get a generic message")
}

func TestExecute_AbortedOnCancel(t *testing.T) {
	api := &fakeRunner{items: []json.RawMessage{json.RawMessage(`"ok"`)}}
	e := newTestExecutor(api, ExecutorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tool := &domain.ToolEntry{Kind: domain.ToolKindRemoteAction, Name: "a", ActorFullName: "acme/a"}
	_, status := e.Execute(ctx, normalizedCall(tool))
	assert.Equal(t, domain.CallAborted, status)
}

func TestExecute_ProxyTimeoutIsFailed(t *testing.T) {
	e := newTestExecutor(&fakeRunner{}, ExecutorOptions{ProxyTimeout: 20 * time.Millisecond})

	tool := &domain.ToolEntry{Kind: domain.ToolKindRemoteProxy, Name: "sub-tool", Proxy: blockingProxy{}}
	result, status := e.Execute(context.Background(), normalizedCall(tool))
	assert.Equal(t, domain.CallFailed, status)
	assert.Contains(t, result.Content[0].Text, "timed out")
}

func TestExecute_TaskModeReturnsAck(t *testing.T) {
	manager := tasks.NewManager(zap.NewNop())
	e := NewExecutor(&fakeRunner{}, manager, nil, zap.NewNop(), ExecutorOptions{})

	ran := make(chan struct{})
	tool := &domain.ToolEntry{
		Kind:      domain.ToolKindInternal,
		Name:      "slow",
		Execution: domain.ExecutionDescriptor{TaskSupport: domain.TaskSupportOptional},
		Handler: func(ctx context.Context, call *domain.NormalizedCall) (*domain.Result, error) {
			close(ran)
			return domain.TextResult("finished"), nil
		},
	}

	call := normalizedCall(tool)
	call.Task = &domain.TaskRequest{}
	result, status := e.Execute(context.Background(), call)
	require.Equal(t, domain.CallSucceeded, status)
	taskID, ok := result.Meta["taskId"].(string)
	require.True(t, ok, "ack must carry the task handle")

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("background execution never ran")
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	taskResult, err := manager.Result(ctx, "sess-1", taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, taskResult.Status)
	assert.Equal(t, "finished", taskResult.Result.Content[0].Text)
}
