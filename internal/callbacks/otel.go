package callbacks

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/studyflow/relay/pkg/telemetry"
)

// TracerName is the tracer name for lifecycle callback spans
const TracerName = "relay-callbacks"

// OTelCallback emits one span per lifecycle event. The spans are
// point-in-time markers rather than enclosing spans; the execution engine
// owns the enclosing execute span, this callback just mirrors the event
// stream into the trace backend.
type OTelCallback struct {
	tracer trace.Tracer
}

// NewOTelCallback creates an OpenTelemetry lifecycle callback
func NewOTelCallback() *OTelCallback {
	return &OTelCallback{tracer: otel.Tracer(TracerName)}
}

// taskEventAttrs converts TaskEventContext to span attributes
func taskEventAttrs(ctx *TaskEventContext) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.KeyTaskID, ctx.TaskID),
		attribute.String(telemetry.KeyTaskType, ctx.TaskType),
		attribute.String(telemetry.KeyTaskPriority, ctx.Priority),
	}

	if ctx.NewState != "" {
		attrs = append(attrs, attribute.String(telemetry.KeyTaskState, ctx.NewState))
	}
	if ctx.AgentID != "" {
		attrs = append(attrs, attribute.String(telemetry.KeyAgentID, ctx.AgentID))
	}
	if ctx.Duration != nil {
		attrs = append(attrs, attribute.Int64("relay.task.duration_ms", ctx.Duration.Milliseconds()))
	}
	if ctx.ErrorType != "" {
		attrs = append(attrs, attribute.String(telemetry.KeyErrorType, ctx.ErrorType))
	}
	return attrs
}

// agentEventAttrs converts AgentEventContext to span attributes
func agentEventAttrs(ctx *AgentEventContext) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.KeyAgentID, ctx.AgentID),
		attribute.Float64(telemetry.KeyAgentEfficiency, ctx.Efficiency),
		attribute.String("relay.agent.status", ctx.Status),
	}
	if ctx.PrevStatus != "" {
		attrs = append(attrs, attribute.String("relay.agent.prev_status", ctx.PrevStatus))
	}
	return attrs
}

func (o *OTelCallback) emit(name string, attrs []attribute.KeyValue) {
	_, span := o.tracer.Start(context.Background(), name, trace.WithAttributes(attrs...))
	span.End()
}

// OnTaskCreated implements Callback
func (o *OTelCallback) OnTaskCreated(ctx *TaskEventContext) error {
	o.emit(string(EventTaskCreated), taskEventAttrs(ctx))
	return nil
}

// OnTaskAssigned implements Callback
func (o *OTelCallback) OnTaskAssigned(ctx *TaskEventContext) error {
	o.emit(string(EventTaskAssigned), taskEventAttrs(ctx))
	return nil
}

// OnTaskStarted implements Callback
func (o *OTelCallback) OnTaskStarted(ctx *TaskEventContext) error {
	o.emit(string(EventTaskStarted), taskEventAttrs(ctx))
	return nil
}

// OnTaskCompleted implements Callback
func (o *OTelCallback) OnTaskCompleted(ctx *TaskEventContext) error {
	_, span := o.tracer.Start(context.Background(), string(EventTaskCompleted),
		trace.WithAttributes(taskEventAttrs(ctx)...))
	span.SetStatus(codes.Ok, "task completed")
	span.End()
	return nil
}

// OnTaskFailed implements Callback
func (o *OTelCallback) OnTaskFailed(ctx *TaskEventContext) error {
	_, span := o.tracer.Start(context.Background(), string(EventTaskFailed),
		trace.WithAttributes(taskEventAttrs(ctx)...))
	if ctx.Error != "" {
		span.RecordError(errors.New(ctx.Error))
		span.SetStatus(codes.Error, ctx.Error)
	}
	span.End()
	return nil
}

// OnAgentRegistered implements Callback
func (o *OTelCallback) OnAgentRegistered(ctx *AgentEventContext) error {
	o.emit(string(EventAgentRegistered), agentEventAttrs(ctx))
	return nil
}

// OnAgentStatusChanged implements Callback
func (o *OTelCallback) OnAgentStatusChanged(ctx *AgentEventContext) error {
	o.emit(string(EventAgentStatusChanged), agentEventAttrs(ctx))
	return nil
}
