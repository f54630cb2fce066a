// Package tasks tracks long-running tool calls. A task is registered under
// (session, task id), acknowledged immediately, and executed in the
// background; a poll/cancel surface observes completion independently of the
// request/response cycle that started it.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// Runner executes the deferred call. The context is detached from the
// originating request and cancelled only by task cancellation or TTL expiry.
type Runner func(ctx context.Context) (*domain.Result, domain.CallStatus)

type taskState struct {
	task      domain.Task
	result    domain.TaskResult
	done      chan struct{}
	cancel    context.CancelFunc
	expiresAt *time.Time
	owner     string
}

// Manager is an in-memory task registry keyed by task id, with per-session
// ownership checks.
type Manager struct {
	mu     sync.Mutex
	tasks  map[string]*taskState
	order  []string
	now    func() time.Time
	logger *zap.Logger
}

// NewManager builds an empty task manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		tasks:  make(map[string]*taskState),
		logger: logger.Named("tasks"),
		now:    time.Now,
	}
}

// Create registers and starts a task owned by sessionID. The returned task
// carries the handle the client polls with.
func (m *Manager) Create(sessionID, tool string, req *domain.TaskRequest, run Runner) (domain.Task, error) {
	if run == nil {
		return domain.Task{}, errors.New("task runner is required")
	}
	if sessionID == "" {
		return domain.Task{}, domain.ErrMissingSession
	}

	now := m.now()
	task := domain.Task{
		TaskID:        uuid.NewString(),
		Tool:          tool,
		Status:        domain.TaskStatusWorking,
		StatusMessage: "The operation is now in progress.",
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	var expiresAt *time.Time
	if req != nil && req.TTL != nil && *req.TTL > 0 {
		task.TTL = req.TTL
		exp := now.Add(time.Duration(*req.TTL) * time.Millisecond)
		expiresAt = &exp
	}

	// Detached from the originating call: cancelling the request must not
	// kill the task.
	taskCtx, cancel := context.WithCancel(context.Background())
	state := &taskState{
		task:      task,
		result:    domain.TaskResult{Status: domain.TaskStatusWorking},
		done:      make(chan struct{}),
		cancel:    cancel,
		expiresAt: expiresAt,
		owner:     sessionID,
	}

	m.mu.Lock()
	m.tasks[task.TaskID] = state
	m.order = append(m.order, task.TaskID)
	m.mu.Unlock()

	m.logger.Info("task started",
		zap.String("task", task.TaskID),
		zap.String("tool", tool),
		zap.String("session", sessionID))

	go m.runTask(task.TaskID, taskCtx, run)

	return task, nil
}

// Get returns task metadata without blocking. Tasks are only visible to
// their owning session.
func (m *Manager) Get(sessionID, taskID string) (domain.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked()

	state, ok := m.tasks[taskID]
	if !ok || state.owner != sessionID {
		return domain.Task{}, false
	}
	return state.task, true
}

// Result blocks until the task reaches a terminal state or ctx is done.
func (m *Manager) Result(ctx context.Context, sessionID, taskID string) (domain.TaskResult, error) {
	m.mu.Lock()
	m.purgeExpiredLocked()
	state, ok := m.tasks[taskID]
	if !ok || state.owner != sessionID {
		m.mu.Unlock()
		return domain.TaskResult{}, domain.ErrTaskNotFound
	}
	if isTerminal(state.task.Status) {
		result := state.result
		m.mu.Unlock()
		return result, nil
	}
	done := state.done
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return domain.TaskResult{}, ctx.Err()
	case <-done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return state.result, nil
	}
}

// Cancel cancels a running task. Cancelling a finished task is an error;
// cancelling an unknown or foreign task reports not-found.
func (m *Manager) Cancel(sessionID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked()

	state, ok := m.tasks[taskID]
	if !ok || state.owner != sessionID {
		return domain.ErrTaskNotFound
	}
	if isTerminal(state.task.Status) {
		return errors.New("task already completed")
	}

	state.cancel()
	now := m.now()
	state.task.Status = domain.TaskStatusCancelled
	state.task.StatusMessage = "The task was cancelled."
	state.task.LastUpdatedAt = now
	state.result = domain.TaskResult{Status: domain.TaskStatusCancelled}
	close(state.done)
	return nil
}

func (m *Manager) runTask(taskID string, ctx context.Context, run Runner) {
	result, status := run(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.tasks[taskID]
	if !ok || isTerminal(state.task.Status) {
		return
	}

	now := m.now()
	state.task.LastUpdatedAt = now
	switch status {
	case domain.CallAborted:
		state.task.Status = domain.TaskStatusCancelled
		state.task.StatusMessage = "The task was cancelled."
		state.result = domain.TaskResult{Status: domain.TaskStatusCancelled}
	case domain.CallFailed:
		state.task.Status = domain.TaskStatusFailed
		state.task.StatusMessage = failureMessage(result)
		state.result = domain.TaskResult{Status: domain.TaskStatusFailed, Result: result}
	default:
		state.task.Status = domain.TaskStatusCompleted
		state.task.StatusMessage = "The task completed successfully."
		state.result = domain.TaskResult{Status: domain.TaskStatusCompleted, Result: result}
	}
	close(state.done)
}

func (m *Manager) purgeExpiredLocked() {
	if len(m.tasks) == 0 {
		return
	}
	now := m.now()
	filtered := m.order[:0]
	for _, id := range m.order {
		state, ok := m.tasks[id]
		if !ok {
			continue
		}
		if state.expiresAt != nil && state.expiresAt.Before(now) {
			state.cancel()
			delete(m.tasks, id)
			continue
		}
		filtered = append(filtered, id)
	}
	m.order = filtered
}

func failureMessage(result *domain.Result) string {
	if result != nil && len(result.Content) > 0 && result.Content[0].Text != "" {
		return result.Content[0].Text
	}
	return "The task failed."
}

func isTerminal(status domain.TaskStatus) bool {
	switch status {
	case domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCancelled:
		return true
	default:
		return false
	}
}
