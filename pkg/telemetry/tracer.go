// Package telemetry provides OpenTelemetry observability for Relay
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer for Relay
var tracer = otel.Tracer("relay")

// Span names for Relay operations
const (
	// Dispatch spans
	SpanDelegate = "relay.dispatch.delegate"

	// Task spans
	SpanTaskExecute  = "relay.task.execute"
	SpanTaskComplete = "relay.task.complete"
	SpanTaskFail     = "relay.task.fail"

	// Engine spans
	SpanEngineTick   = "relay.engine.tick"
	SpanEngineWorker = "relay.engine.worker"

	// Knowledge spans
	SpanKnowledgeStore    = "relay.knowledge.store"
	SpanKnowledgeRetrieve = "relay.knowledge.retrieve"
	SpanKnowledgeQuery    = "relay.knowledge.query"

	// Workflow spans
	SpanWorkflowExecute = "relay.workflow.execute"
)

// StartTaskSpan starts a span for a task operation with task attributes
func StartTaskSpan(ctx context.Context, name, taskID, taskType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String(KeyTaskID, taskID),
		attribute.String(KeyTaskType, taskType),
	)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartAgentSpan starts a span for an agent-scoped operation
func StartAgentSpan(ctx context.Context, name, agentID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(KeyAgentID, agentID))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartKnowledgeSpan starts a span for a knowledge store operation
func StartKnowledgeSpan(ctx context.Context, name, entryID, requester string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String(KeyEntryID, entryID),
		attribute.String(KeyRequesterID, requester),
	)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartWorkflowSpan starts a span for workflow execution
func StartWorkflowSpan(ctx context.Context, workflowName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(KeyWorkflowName, workflowName))
	return tracer.Start(ctx, SpanWorkflowExecute, trace.WithAttributes(attrs...))
}

// RecordError records an error on a span and marks the span failed
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(
		attribute.String("exception.message", err.Error()),
		attribute.String("exception.type", errorType),
	))
	span.SetStatus(codes.Error, err.Error())
}

// SetTaskStatus sets the task status as a span attribute
func SetTaskStatus(span trace.Span, status string) {
	span.SetAttributes(attribute.String(KeyTaskState, status))
}

// GetTraceID returns the trace ID from context if available
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
