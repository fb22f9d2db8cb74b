// Package events provides pub/sub streaming for coordination lifecycle events
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventTaskCreated is emitted when a task is delegated
	EventTaskCreated EventType = "task.created"
	// EventTaskAssigned is emitted when an agent is bound to a task
	EventTaskAssigned EventType = "task.assigned"
	// EventTaskStarted is emitted when a task begins execution
	EventTaskStarted EventType = "task.started"
	// EventTaskCompleted is emitted when a task completes successfully
	EventTaskCompleted EventType = "task.completed"
	// EventTaskFailed is emitted when a task fails or times out
	EventTaskFailed EventType = "task.failed"
	// EventAgentRegistered is emitted when an agent joins the pool
	EventAgentRegistered EventType = "agent.registered"
	// EventAgentStatusChanged is emitted on agent lifecycle transitions
	EventAgentStatusChanged EventType = "agent.status_changed"
	// EventKnowledgeStored is emitted when a knowledge entry is written
	EventKnowledgeStored EventType = "knowledge.stored"
	// EventWorkflowStarted is emitted when a workflow run begins
	EventWorkflowStarted EventType = "workflow.started"
)

// Event represents a single lifecycle event
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"`
	TaskID    string         `json:"task_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp. The bus assigns
// the ID at publish time if left empty.
func NewEvent(eventType EventType, taskID, agentID string, data map[string]any) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		TaskID:    taskID,
		AgentID:   agentID,
		Data:      data,
	}
}
