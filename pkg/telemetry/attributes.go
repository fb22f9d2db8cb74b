// Package telemetry provides OpenTelemetry observability for Relay
package telemetry

import "go.opentelemetry.io/otel/attribute"

// Semantic convention keys for Relay-specific attributes
const (
	// Task attributes
	KeyTaskID       = "relay.task.id"
	KeyTaskType     = "relay.task.type"
	KeyTaskState    = "relay.task.state"
	KeyTaskPriority = "relay.task.priority"

	// Agent attributes
	KeyAgentID         = "relay.agent.id"
	KeyAgentEfficiency = "relay.agent.efficiency"

	// Knowledge attributes
	KeyEntryID     = "relay.knowledge.entry_id"
	KeyCategory    = "relay.knowledge.category"
	KeyRequesterID = "relay.knowledge.requester"
	KeyBackend     = "relay.knowledge.backend"

	// Workflow attributes
	KeyWorkflowName = "relay.workflow.name"
	KeyWorkflowStep = "relay.workflow.step"

	// Error attributes
	KeyErrorType = "relay.error.type"
)

// Error type values
const (
	ErrorTypeNoCapableWorker = "no_capable_worker"
	ErrorTypeExecution       = "execution_failure"
	ErrorTypeBackend         = "backend_unavailable"
	ErrorTypeTimeout         = "timeout"
)

// Backend values for KeyBackend
const (
	BackendPrimary  = "primary"
	BackendFallback = "fallback"
)

// TaskAttrs returns a set of attributes for a task
func TaskAttrs(id, taskType, state, priority string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(KeyTaskID, id),
		attribute.String(KeyTaskType, taskType),
		attribute.String(KeyTaskState, state),
		attribute.String(KeyTaskPriority, priority),
	}
}

// AgentAttrs returns a set of attributes for an agent
func AgentAttrs(agentID string, efficiency float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(KeyAgentID, agentID),
		attribute.Float64(KeyAgentEfficiency, efficiency),
	}
}

// KnowledgeAttrs returns a set of attributes for a knowledge operation
func KnowledgeAttrs(entryID, category, backend string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(KeyEntryID, entryID),
		attribute.String(KeyCategory, category),
		attribute.String(KeyBackend, backend),
	}
}
