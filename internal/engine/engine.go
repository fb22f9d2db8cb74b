// Package engine runs the execution loop: a fixed-interval ticker feeds
// queued tasks to a bounded pool of workers, which execute them through
// registered handlers and feed outcomes back into agent efficiency.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/studyflow/relay/internal/callbacks"
	"github.com/studyflow/relay/internal/dispatch"
	"github.com/studyflow/relay/internal/events"
	"github.com/studyflow/relay/internal/knowledge"
	"github.com/studyflow/relay/internal/queue"
	"github.com/studyflow/relay/internal/registry"
	"github.com/studyflow/relay/pkg/telemetry"
	"github.com/studyflow/relay/pkg/types"
)

// Efficiency adjustments applied after each execution
const (
	effSuccessDelta = 0.05
	effFailureDelta = -0.15
)

// Options configures the execution engine
type Options struct {
	// Workers is the size of the execution pool
	Workers int
	// TickInterval is how often the feeder drains the queue
	TickInterval time.Duration
	// TaskTimeout bounds a single task execution
	TaskTimeout time.Duration
}

// DefaultOptions returns the standard engine configuration
func DefaultOptions() Options {
	return Options{
		Workers:      4,
		TickInterval: 100 * time.Millisecond,
		TaskTimeout:  30 * time.Second,
	}
}

func (o Options) normalize() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultOptions().Workers
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultOptions().TickInterval
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = DefaultOptions().TaskTimeout
	}
	return o
}

// Engine consumes the priority queue and executes tasks against their
// assigned agents. Execution is bounded: at most Workers tasks run
// concurrently regardless of tick cadence, so a slow handler cannot pile
// up overlapping runs.
type Engine struct {
	opts      Options
	registry  *registry.Registry
	queue     *queue.Queue
	tracker   *dispatch.Tracker
	handlers  *HandlerRegistry
	knowledge *knowledge.Service
	hooks     *callbacks.Registry
	bus       *events.Bus
	logger    *log.Logger

	work chan *types.Task
}

// New creates an engine over the shared registry, queue, and tracker.
// The knowledge service, callback registry, and bus are optional; nil
// disables the corresponding integration.
func New(opts Options, reg *registry.Registry, q *queue.Queue, tracker *dispatch.Tracker, ks *knowledge.Service, hooks *callbacks.Registry, bus *events.Bus, logger *log.Logger) *Engine {
	opts = opts.normalize()
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		opts:      opts,
		registry:  reg,
		queue:     q,
		tracker:   tracker,
		handlers:  NewHandlerRegistry(),
		knowledge: ks,
		hooks:     hooks,
		bus:       bus,
		logger:    logger,
		work:      make(chan *types.Task, opts.Workers*2),
	}
}

// Handlers exposes the handler registry for task type bindings
func (e *Engine) Handlers() *HandlerRegistry {
	return e.handlers
}

// Run starts the worker pool and the feed ticker, and blocks until the
// context is cancelled. Tasks still queued or buffered at shutdown stay
// pending; only executions already in flight run to completion.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Printf("🚀 Starting engine with %d workers (tick %v)", e.opts.Workers, e.opts.TickInterval)

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go e.worker(ctx, i, &wg)
	}

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Println("🛑 Engine stopping")
			close(e.work)
			wg.Wait()
			return ctx.Err()

		case <-ticker.C:
			e.feed(ctx)
		}
	}
}

// feed drains queued tasks into the work channel in priority order,
// stopping when the channel is full. Tasks that do not fit stay queued
// for the next tick, preserving their lane order.
func (e *Engine) feed(ctx context.Context) {
	_, span := telemetry.StartTaskSpan(ctx, telemetry.SpanEngineTick, "", "")
	defer span.End()

	for {
		task := e.queue.Dequeue()
		if task == nil {
			return
		}

		select {
		case e.work <- task:
		default:
			// Pool saturated; put the task back at the front of its lane
			e.queue.Requeue(task)
			return
		}
	}
}

// worker executes tasks from the work channel until it is closed
func (e *Engine) worker(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()

	e.logger.Printf("👷 Worker %d started", id)
	for task := range e.work {
		if ctx.Err() != nil {
			// Shutdown: drain without executing so buffered tasks stay
			// pending instead of failing against a cancelled context
			continue
		}
		e.execute(ctx, id, task)
	}
	e.logger.Printf("👷 Worker %d stopping", id)
}

// execute runs a single task end to end: status transitions, handler
// invocation under the task timeout, efficiency adjustment, outcome
// history, and result persistence.
func (e *Engine) execute(ctx context.Context, workerID int, task *types.Task) {
	start := time.Now()
	agentID := task.AssignedAgent

	taskCtx, span := telemetry.StartTaskSpan(ctx, telemetry.SpanTaskExecute, task.ID, task.Type)
	defer span.End()

	e.logger.Printf("👷 Worker %d executing task %s (%s) on agent %s", workerID, task.ID, task.Type, agentID)

	e.tracker.Update(task.ID, func(t *types.Task) {
		t.Status = types.TaskStatusInProgress
	})
	if prev, err := e.registry.SetStatus(agentID, types.AgentStatusProcessing); err != nil {
		e.logger.Printf("⚠️  Setting agent %s processing: %v", agentID, err)
	} else {
		e.agentStatusChanged(agentID, prev, types.AgentStatusProcessing)
	}
	e.publish(events.EventTaskStarted, task.ID, agentID, nil)
	e.dispatchHook(callbacks.EventTaskStarted, task, agentID, "pending", "in_progress", nil, "", "")

	execCtx, cancel := context.WithTimeout(taskCtx, e.opts.TaskTimeout)
	result, err := e.handlers.Resolve(task.Type)(execCtx, task)
	cancel()

	duration := time.Since(start)
	if err != nil {
		errType := telemetry.ErrorTypeExecution
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("task exceeded %v timeout", e.opts.TaskTimeout)
			errType = telemetry.ErrorTypeTimeout
		}
		telemetry.RecordError(span, err, errType)
		telemetry.SetTaskStatus(span, string(types.TaskStatusFailed))
		e.fail(ctx, task, agentID, err, errType, duration)
		return
	}

	telemetry.SetTaskStatus(span, string(types.TaskStatusCompleted))
	e.complete(ctx, task, agentID, result, duration)
}

func (e *Engine) complete(ctx context.Context, task *types.Task, agentID string, result any, duration time.Duration) {
	now := time.Now().Unix()
	e.tracker.Update(task.ID, func(t *types.Task) {
		t.Status = types.TaskStatusCompleted
		t.Result = result
		t.CompletedAt = &now
	})

	score, err := e.registry.AdjustEfficiency(agentID, effSuccessDelta)
	if err != nil {
		e.logger.Printf("⚠️  Adjusting efficiency for %s: %v", agentID, err)
	}
	if prev, err := e.registry.RecordOutcome(agentID, types.TaskRecord{
		TaskID:      task.ID,
		TaskType:    task.Type,
		Success:     true,
		DurationMs:  duration.Milliseconds(),
		CompletedAt: now,
	}); err != nil {
		e.logger.Printf("⚠️  Recording outcome for %s: %v", agentID, err)
	} else {
		e.agentStatusChanged(agentID, prev, types.AgentStatusActive)
	}

	if e.knowledge != nil {
		if err := e.knowledge.StoreTaskResult(ctx, task.ID, result, agentID); err != nil {
			e.logger.Printf("⚠️  Persisting result for task %s: %v", task.ID, err)
		}
	}

	e.publish(events.EventTaskCompleted, task.ID, agentID, map[string]any{
		"duration_ms": duration.Milliseconds(),
	})
	e.dispatchHook(callbacks.EventTaskCompleted, task, agentID, "in_progress", "completed", &duration, "", "")

	e.logger.Printf("✅ Task %s completed by %s in %v (efficiency %.2f)", task.ID, agentID, duration, score)
}

func (e *Engine) fail(ctx context.Context, task *types.Task, agentID string, execErr error, errType string, duration time.Duration) {
	now := time.Now().Unix()
	e.tracker.Update(task.ID, func(t *types.Task) {
		t.Status = types.TaskStatusFailed
		t.Error = execErr.Error()
		t.CompletedAt = &now
	})

	score, err := e.registry.AdjustEfficiency(agentID, effFailureDelta)
	if err != nil {
		e.logger.Printf("⚠️  Adjusting efficiency for %s: %v", agentID, err)
	}
	if prev, err := e.registry.RecordOutcome(agentID, types.TaskRecord{
		TaskID:      task.ID,
		TaskType:    task.Type,
		Success:     false,
		DurationMs:  duration.Milliseconds(),
		CompletedAt: now,
	}); err != nil {
		e.logger.Printf("⚠️  Recording outcome for %s: %v", agentID, err)
	} else {
		e.agentStatusChanged(agentID, prev, types.AgentStatusError)
	}

	e.publish(events.EventTaskFailed, task.ID, agentID, map[string]any{
		"error": execErr.Error(),
	})
	e.dispatchHook(callbacks.EventTaskFailed, task, agentID, "in_progress", "failed", &duration, execErr.Error(), errType)

	e.logger.Printf("❌ Task %s failed on %s: %v (efficiency %.2f)", task.ID, agentID, execErr, score)
}

// agentStatusChanged publishes the agent lifecycle transition to the bus
// and the callback registry. No-op transitions are suppressed.
func (e *Engine) agentStatusChanged(agentID string, prev, next types.AgentStatus) {
	if prev == next {
		return
	}

	agent, ok := e.registry.Get(agentID)
	if !ok {
		return
	}

	e.publish(events.EventAgentStatusChanged, "", agentID, map[string]any{
		"prev_status": string(prev),
		"status":      string(next),
	})
	if e.hooks != nil {
		_ = e.hooks.DispatchAgent(callbacks.EventAgentStatusChanged, &callbacks.AgentEventContext{
			AgentID:      agentID,
			Name:         agent.Name,
			Status:       string(next),
			PrevStatus:   string(prev),
			Efficiency:   agent.Efficiency,
			Capabilities: agent.Capabilities,
			Timestamp:    time.Now(),
		})
	}
}

func (e *Engine) publish(eventType events.EventType, taskID, agentID string, data map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewEvent(eventType, taskID, agentID, data))
}

func (e *Engine) dispatchHook(event callbacks.EventType, task *types.Task, agentID, prev, next string, duration *time.Duration, errMsg, errType string) {
	if e.hooks == nil {
		return
	}
	_ = e.hooks.DispatchTask(event, &callbacks.TaskEventContext{
		TaskID:    task.ID,
		TaskType:  task.Type,
		Priority:  string(task.Priority),
		PrevState: prev,
		NewState:  next,
		AgentID:   agentID,
		Timestamp: time.Now(),
		Duration:  duration,
		Error:     errMsg,
		ErrorType: errType,
	})
}
