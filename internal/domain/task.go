package domain

import "time"

// TaskStatus is the lifecycle state of a long-running call.
type TaskStatus string

const (
	TaskStatusWorking   TaskStatus = "working"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is the client-visible handle for a long-running call.
type Task struct {
	TaskID        string     `json:"taskId"`
	Tool          string     `json:"tool"`
	Status        TaskStatus `json:"status"`
	StatusMessage string     `json:"statusMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUpdatedAt time.Time  `json:"lastUpdatedAt"`
	TTL           *int64     `json:"ttl,omitempty"`
}

// TaskResult carries the terminal outcome of a task.
type TaskResult struct {
	Status TaskStatus
	Result *Result
}
