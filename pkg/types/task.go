// Package types defines core data structures for Relay
package types

import "time"

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority represents the urgency lane a task is routed through
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists all lanes in strict dequeue order
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Normalize maps unknown priority values to the medium lane
func (p Priority) Normalize() Priority {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p
	default:
		return PriorityMedium
	}
}

// Task represents a unit of delegated work
type Task struct {
	ID            string         `json:"id" db:"id"`
	Type          string         `json:"type" db:"type"`
	Parameters    map[string]any `json:"parameters,omitempty" db:"parameters"`
	Priority      Priority       `json:"priority" db:"priority"`
	Status        TaskStatus     `json:"status" db:"status"`
	AssignedAgent string         `json:"assigned_agent,omitempty" db:"assigned_agent"`
	Result        any            `json:"result,omitempty" db:"result"`
	Error         string         `json:"error,omitempty" db:"error"`
	CreatedAt     int64          `json:"created_at" db:"created_at"`
	CompletedAt   *int64         `json:"completed_at,omitempty" db:"completed_at"`
}

// NewTask builds a pending task with the current timestamp.
// The ID is assigned by the dispatcher.
func NewTask(taskType string, parameters map[string]any, priority Priority) *Task {
	return &Task{
		Type:       taskType,
		Parameters: parameters,
		Priority:   priority.Normalize(),
		Status:     TaskStatusPending,
		CreatedAt:  time.Now().Unix(),
	}
}

// Terminal reports whether the task has reached a final state
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// SystemStatus is a point-in-time snapshot of the coordination core
type SystemStatus struct {
	TotalAgents int `json:"total_agents"`
	Active      int `json:"active"`
	Processing  int `json:"processing"`
	Idle        int `json:"idle"`
	QueuedTasks int `json:"queued_tasks"`
}
