// Package callbacks provides a hook system for task and agent lifecycle
// events. This enables observability integrations (logging, metrics,
// OpenTelemetry) without coupling the execution engine to specific tools.
package callbacks

import (
	"time"
)

// EventType represents the type of lifecycle event
type EventType string

const (
	// Task lifecycle events
	EventTaskCreated   EventType = "task.created"
	EventTaskAssigned  EventType = "task.assigned"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"

	// Agent lifecycle events
	EventAgentRegistered    EventType = "agent.registered"
	EventAgentStatusChanged EventType = "agent.status_changed"
)

// TaskEventContext provides context for task-related events
type TaskEventContext struct {
	// Task identification
	TaskID   string
	TaskType string
	Priority string

	// State information
	PrevState string
	NewState  string

	// Assigned agent
	AgentID string

	// Timing
	Timestamp time.Time
	Duration  *time.Duration

	// Failure information (for failed events)
	Error     string
	ErrorType string

	// Additional metadata
	Metadata map[string]string
}

// AgentEventContext provides context for agent-related events
type AgentEventContext struct {
	// Agent identification
	AgentID string
	Name    string

	// Agent state
	Status     string
	PrevStatus string
	Efficiency float64

	// Capability surface at the time of the event
	Capabilities []string

	// Timing
	Timestamp time.Time

	// Additional metadata
	Metadata map[string]string
}

// Callback is the interface all callback implementations must satisfy.
// Each method corresponds to a specific lifecycle event type.
// Callbacks should be idempotent where possible and should not panic.
//
// Callbacks are invoked synchronously on the execution path; long-running
// work belongs in a goroutine spawned by the callback.
type Callback interface {
	// Task lifecycle events

	// OnTaskCreated is called when a task is created by the dispatcher
	OnTaskCreated(ctx *TaskEventContext) error

	// OnTaskAssigned is called when a task is bound to an agent
	OnTaskAssigned(ctx *TaskEventContext) error

	// OnTaskStarted is called when a task begins execution
	OnTaskStarted(ctx *TaskEventContext) error

	// OnTaskCompleted is called when a task completes successfully
	OnTaskCompleted(ctx *TaskEventContext) error

	// OnTaskFailed is called when a task fails
	OnTaskFailed(ctx *TaskEventContext) error

	// Agent lifecycle events

	// OnAgentRegistered is called when an agent joins the pool
	OnAgentRegistered(ctx *AgentEventContext) error

	// OnAgentStatusChanged is called when an agent transitions state
	OnAgentStatusChanged(ctx *AgentEventContext) error
}

// CallbackFunc is a convenience type for simple function-based callbacks.
// Only implement the events you care about; unimplemented methods return nil.
type CallbackFunc struct {
	OnTaskCreatedFunc        func(*TaskEventContext) error
	OnTaskAssignedFunc       func(*TaskEventContext) error
	OnTaskStartedFunc        func(*TaskEventContext) error
	OnTaskCompletedFunc      func(*TaskEventContext) error
	OnTaskFailedFunc         func(*TaskEventContext) error
	OnAgentRegisteredFunc    func(*AgentEventContext) error
	OnAgentStatusChangedFunc func(*AgentEventContext) error
}

// OnTaskCreated implements Callback
func (c *CallbackFunc) OnTaskCreated(ctx *TaskEventContext) error {
	if c.OnTaskCreatedFunc != nil {
		return c.OnTaskCreatedFunc(ctx)
	}
	return nil
}

// OnTaskAssigned implements Callback
func (c *CallbackFunc) OnTaskAssigned(ctx *TaskEventContext) error {
	if c.OnTaskAssignedFunc != nil {
		return c.OnTaskAssignedFunc(ctx)
	}
	return nil
}

// OnTaskStarted implements Callback
func (c *CallbackFunc) OnTaskStarted(ctx *TaskEventContext) error {
	if c.OnTaskStartedFunc != nil {
		return c.OnTaskStartedFunc(ctx)
	}
	return nil
}

// OnTaskCompleted implements Callback
func (c *CallbackFunc) OnTaskCompleted(ctx *TaskEventContext) error {
	if c.OnTaskCompletedFunc != nil {
		return c.OnTaskCompletedFunc(ctx)
	}
	return nil
}

// OnTaskFailed implements Callback
func (c *CallbackFunc) OnTaskFailed(ctx *TaskEventContext) error {
	if c.OnTaskFailedFunc != nil {
		return c.OnTaskFailedFunc(ctx)
	}
	return nil
}

// OnAgentRegistered implements Callback
func (c *CallbackFunc) OnAgentRegistered(ctx *AgentEventContext) error {
	if c.OnAgentRegisteredFunc != nil {
		return c.OnAgentRegisteredFunc(ctx)
	}
	return nil
}

// OnAgentStatusChanged implements Callback
func (c *CallbackFunc) OnAgentStatusChanged(ctx *AgentEventContext) error {
	if c.OnAgentStatusChangedFunc != nil {
		return c.OnAgentStatusChangedFunc(ctx)
	}
	return nil
}
