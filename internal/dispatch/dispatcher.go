// Package dispatch routes typed work items to the best-fit agent
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/studyflow/relay/internal/events"
	"github.com/studyflow/relay/internal/queue"
	"github.com/studyflow/relay/internal/registry"
	"github.com/studyflow/relay/pkg/telemetry"
	"github.com/studyflow/relay/pkg/types"
)

// NoCapableWorkerError is returned by Delegate when no registered agent
// exposes a capability covering the task type. The task is never enqueued.
type NoCapableWorkerError struct {
	TaskType string
}

func (e *NoCapableWorkerError) Error() string {
	return fmt.Sprintf("no capable worker for task type %q", e.TaskType)
}

// Dispatcher binds tasks to agents and feeds the priority queue.
// Delegation is non-blocking: Delegate returns the task ID immediately and
// execution happens asynchronously in the engine.
type Dispatcher struct {
	registry *registry.Registry
	queue    *queue.Queue
	tracker  *Tracker
	bus      *events.Bus
}

// New creates a dispatcher over the given registry and queue.
// The bus is optional; a nil bus disables event publication.
func New(reg *registry.Registry, q *queue.Queue, tracker *Tracker, bus *events.Bus) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		queue:    q,
		tracker:  tracker,
		bus:      bus,
	}
}

// Tracker exposes the task tracker for status queries
func (d *Dispatcher) Tracker() *Tracker {
	return d.tracker
}

// Delegate builds a pending task for the given type, selects the best-fit
// agent (capability token match, highest efficiency first, registration
// order on ties), binds it, enqueues the task, and returns the task ID.
//
// Fails with NoCapableWorkerError when no selectable agent matches; the
// task is not created or enqueued in that case.
func (d *Dispatcher) Delegate(ctx context.Context, taskType string, parameters map[string]any, priority types.Priority) (string, error) {
	_, span := telemetry.StartTaskSpan(ctx, telemetry.SpanDelegate, "", taskType)
	defer span.End()

	selected := d.selectAgent(taskType)
	if selected == nil {
		err := &NoCapableWorkerError{TaskType: taskType}
		telemetry.RecordError(span, err, telemetry.ErrorTypeNoCapableWorker)
		return "", err
	}

	task := types.NewTask(taskType, parameters, priority)
	task.ID = uuid.New().String()
	task.AssignedAgent = selected.ID

	d.tracker.Add(task)
	d.queue.Enqueue(task)

	telemetry.SetTaskStatus(span, string(task.Status))
	d.publish(events.EventTaskCreated, task.ID, "", map[string]any{
		"task_type": taskType,
		"priority":  string(task.Priority),
	})
	d.publish(events.EventTaskAssigned, task.ID, selected.ID, nil)

	return task.ID, nil
}

// selectAgent returns the highest-ranked selectable agent whose capability
// set covers the task type, or nil when none matches
func (d *Dispatcher) selectAgent(taskType string) *types.Agent {
	for _, agent := range d.registry.RankedCandidates() {
		if agentMatches(agent.Capabilities, taskType) {
			return agent
		}
	}
	return nil
}

// TaskStatus returns a snapshot of the task with the given ID
func (d *Dispatcher) TaskStatus(taskID string) (types.Task, error) {
	task, ok := d.tracker.Get(taskID)
	if !ok {
		return types.Task{}, fmt.Errorf("task %s not found", taskID)
	}
	return task, nil
}

// SystemStatus returns a point-in-time snapshot of the agent pool and queue
func (d *Dispatcher) SystemStatus() types.SystemStatus {
	counts := d.registry.StatusCounts()
	return types.SystemStatus{
		TotalAgents: d.registry.Len(),
		Active:      counts[types.AgentStatusActive],
		Processing:  counts[types.AgentStatusProcessing],
		Idle:        counts[types.AgentStatusIdle] + counts[types.AgentStatusStandby],
		QueuedTasks: d.queue.Size(),
	}
}

func (d *Dispatcher) publish(eventType events.EventType, taskID, agentID string, data map[string]any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(events.NewEvent(eventType, taskID, agentID, data))
}
