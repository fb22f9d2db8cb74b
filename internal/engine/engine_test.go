package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/studyflow/relay/internal/callbacks"
	"github.com/studyflow/relay/internal/dispatch"
	"github.com/studyflow/relay/internal/knowledge"
	"github.com/studyflow/relay/internal/queue"
	"github.com/studyflow/relay/internal/registry"
	"github.com/studyflow/relay/pkg/types"
)

type harness struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	knowledge  *knowledge.Service
	engine     *Engine
}

// setupHarness wires a full coordination core with a fast tick and starts
// the engine. The engine stops when the test finishes.
func setupHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	reg := registry.New()
	q := queue.New()
	tracker := dispatch.NewTracker()
	ks := knowledge.NewService(knowledge.NewMemoryStorage(), logger, nil)

	eng := New(opts, reg, q, tracker, ks, nil, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{
		registry:   reg,
		dispatcher: dispatch.New(reg, q, tracker, nil),
		knowledge:  ks,
		engine:     eng,
	}
}

func fastOptions() Options {
	return Options{
		Workers:      2,
		TickInterval: 10 * time.Millisecond,
		TaskTimeout:  time.Second,
	}
}

// waitForTerminal polls until the task reaches a terminal state
func waitForTerminal(t *testing.T, h *harness, taskID string) types.Task {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		task, err := h.dispatcher.TaskStatus(taskID)
		if err != nil {
			t.Fatalf("TaskStatus failed: %v", err)
		}
		if task.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Task %s did not reach a terminal state", taskID)
	return types.Task{}
}

// waitForEfficiency polls until the agent's efficiency score reaches want
func waitForEfficiency(t *testing.T, h *harness, agentID string, want float64) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		agent, ok := h.registry.Get(agentID)
		if ok && agent.Efficiency == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Agent %s efficiency = %v, want %v", agentID, agent.Efficiency, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func registerAgent(t *testing.T, h *harness, id string, capabilities ...string) {
	t.Helper()
	_, err := h.registry.Register(registry.Registration{
		ID:           id,
		Name:         id,
		Type:         "tutor",
		Capabilities: capabilities,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func TestEngine_ExecutesDelegatedTask(t *testing.T) {
	h := setupHarness(t, fastOptions())
	registerAgent(t, h, "analyst-1", "pattern-recognition", "data-analysis")

	taskID, err := h.dispatcher.Delegate(context.Background(), "analyze-behavior-patterns",
		map[string]any{"student": "u1"}, types.PriorityHigh)
	if err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}

	task := waitForTerminal(t, h, taskID)
	if task.Status != types.TaskStatusCompleted {
		t.Fatalf("Task status = %s, want completed (error: %s)", task.Status, task.Error)
	}
	if task.Result == nil {
		t.Error("Completed task has no result")
	}
	if task.CompletedAt == nil {
		t.Error("Completed task has no completion timestamp")
	}

	agent, ok := h.registry.Get("analyst-1")
	if !ok {
		t.Fatal("Agent missing from registry")
	}
	if len(agent.History) != 1 || !agent.History[0].Success {
		t.Errorf("History = %+v, want one successful record", agent.History)
	}
	if agent.Status != types.AgentStatusActive {
		t.Errorf("Agent status = %s, want active after completion", agent.Status)
	}
}

func TestEngine_PersistsTaskResult(t *testing.T) {
	h := setupHarness(t, fastOptions())
	registerAgent(t, h, "analyst-1", "pattern-recognition")

	taskID, err := h.dispatcher.Delegate(context.Background(), "analyze-behavior-patterns", nil, types.PriorityMedium)
	if err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	waitForTerminal(t, h, taskID)

	value, err := h.knowledge.Retrieve(context.Background(), knowledge.TaskResultsCategory, taskID, "test")
	if err != nil {
		t.Fatalf("Task result not in knowledge store: %v", err)
	}
	result, ok := value.(map[string]any)
	if !ok || result["task_id"] != taskID {
		t.Errorf("Stored result = %v", value)
	}
}

func TestEngine_FailureAdjustsEfficiencyAndStatus(t *testing.T) {
	h := setupHarness(t, fastOptions())
	registerAgent(t, h, "flaky-1", "grade-quiz")

	h.engine.Handlers().Register("grade-quiz", func(ctx context.Context, task *types.Task) (any, error) {
		return nil, errors.New("rubric unavailable")
	})

	taskID, err := h.dispatcher.Delegate(context.Background(), "grade-quiz", nil, types.PriorityMedium)
	if err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}

	task := waitForTerminal(t, h, taskID)
	if task.Status != types.TaskStatusFailed {
		t.Fatalf("Task status = %s, want failed", task.Status)
	}
	if !strings.Contains(task.Error, "rubric unavailable") {
		t.Errorf("Task error = %q", task.Error)
	}

	agent, _ := h.registry.Get("flaky-1")
	if agent.Status != types.AgentStatusError {
		t.Errorf("Agent status = %s, want error", agent.Status)
	}
	if agent.Efficiency != 0.85 {
		t.Errorf("Efficiency = %v, want 0.85 after one failure", agent.Efficiency)
	}
}

func TestEngine_SuccessHealsErroredAgent(t *testing.T) {
	h := setupHarness(t, fastOptions())
	registerAgent(t, h, "flaky-1", "grade-quiz")

	failNext := true
	h.engine.Handlers().Register("grade-quiz", func(ctx context.Context, task *types.Task) (any, error) {
		if failNext {
			failNext = false
			return nil, errors.New("transient")
		}
		return "graded", nil
	})

	first, err := h.dispatcher.Delegate(context.Background(), "grade-quiz", nil, types.PriorityMedium)
	if err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	waitForTerminal(t, h, first)

	afterFailure := types.ClampEfficiency(types.EfficiencyMax + effFailureDelta)
	waitForEfficiency(t, h, "flaky-1", afterFailure)

	// Errored agents remain selectable so they can recover
	second, err := h.dispatcher.Delegate(context.Background(), "grade-quiz", nil, types.PriorityMedium)
	if err != nil {
		t.Fatalf("Delegate to errored agent failed: %v", err)
	}
	task := waitForTerminal(t, h, second)
	if task.Status != types.TaskStatusCompleted {
		t.Fatalf("Second task status = %s, want completed", task.Status)
	}

	// The post-failure score sits below max, so the success increase is
	// observable rather than clamped away
	waitForEfficiency(t, h, "flaky-1", types.ClampEfficiency(afterFailure+effSuccessDelta))

	agent, _ := h.registry.Get("flaky-1")
	if agent.Status != types.AgentStatusActive {
		t.Errorf("Agent status = %s, want active after recovery", agent.Status)
	}
	if agent.Efficiency <= afterFailure {
		t.Errorf("Efficiency = %v, want a rise above %v after success", agent.Efficiency, afterFailure)
	}
}

func TestEngine_TaskTimeout(t *testing.T) {
	opts := fastOptions()
	opts.TaskTimeout = 30 * time.Millisecond
	h := setupHarness(t, opts)
	registerAgent(t, h, "slow-1", "long-research")

	h.engine.Handlers().Register("long-research", func(ctx context.Context, task *types.Task) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "done", nil
		}
	})

	taskID, err := h.dispatcher.Delegate(context.Background(), "long-research", nil, types.PriorityMedium)
	if err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}

	task := waitForTerminal(t, h, taskID)
	if task.Status != types.TaskStatusFailed {
		t.Fatalf("Task status = %s, want failed on timeout", task.Status)
	}
	if !strings.Contains(task.Error, "timeout") {
		t.Errorf("Task error = %q, want timeout message", task.Error)
	}
}

func TestEngine_BoundedConcurrency(t *testing.T) {
	opts := fastOptions()
	opts.Workers = 1
	h := setupHarness(t, opts)
	registerAgent(t, h, "solo-1", "summarize")

	running := make(chan struct{}, 8)
	maxSeen := 0
	mu := make(chan struct{}, 1)
	mu <- struct{}{}

	h.engine.Handlers().Register("summarize", func(ctx context.Context, task *types.Task) (any, error) {
		running <- struct{}{}
		<-mu
		if n := len(running); n > maxSeen {
			maxSeen = n
		}
		mu <- struct{}{}
		time.Sleep(20 * time.Millisecond)
		<-running
		return "ok", nil
	})

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := h.dispatcher.Delegate(context.Background(), "summarize", nil, types.PriorityMedium)
		if err != nil {
			t.Fatalf("Delegate failed: %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForTerminal(t, h, id)
	}

	if maxSeen > 1 {
		t.Errorf("Observed %d concurrent executions with 1 worker", maxSeen)
	}
}

func TestEngine_AgentTransitionsFireCallbacks(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	reg := registry.New()
	q := queue.New()
	tracker := dispatch.NewTracker()

	var mu sync.Mutex
	var transitions []string
	hooks := callbacks.NewRegistry()
	hooks.Register(&callbacks.CallbackFunc{
		OnAgentStatusChangedFunc: func(ev *callbacks.AgentEventContext) error {
			mu.Lock()
			transitions = append(transitions, ev.PrevStatus+">"+ev.Status)
			mu.Unlock()
			return nil
		},
	}, []callbacks.EventType{callbacks.EventAgentStatusChanged}, callbacks.PriorityMedium, "capture")

	eng := New(fastOptions(), reg, q, tracker, nil, hooks, nil, logger)
	d := dispatch.New(reg, q, tracker, nil)
	h := &harness{registry: reg, dispatcher: d, engine: eng}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	registerAgent(t, h, "analyst-1", "pattern-recognition")

	taskID, err := d.Delegate(context.Background(), "analyze-behavior-patterns", nil, types.PriorityMedium)
	if err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	waitForTerminal(t, h, taskID)

	want := []string{"active>processing", "processing>active"}
	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		got := append([]string(nil), transitions...)
		mu.Unlock()
		if reflect.DeepEqual(got, want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Agent transitions = %v, want %v", got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_ShutdownLeavesBufferedTasksPending(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	reg := registry.New()
	q := queue.New()
	tracker := dispatch.NewTracker()

	opts := fastOptions()
	opts.Workers = 1
	eng := New(opts, reg, q, tracker, nil, nil, nil, logger)
	d := dispatch.New(reg, q, tracker, nil)
	h := &harness{registry: reg, dispatcher: d, engine: eng}
	registerAgent(t, h, "solo-1", "summarize")

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	eng.Handlers().Register("summarize", func(ctx context.Context, task *types.Task) (any, error) {
		started <- struct{}{}
		<-release
		return "ok", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := d.Delegate(context.Background(), "summarize", nil, types.PriorityMedium)
		if err != nil {
			t.Fatalf("Delegate failed: %v", err)
		}
		ids = append(ids, id)
	}

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("First task never started")
	}

	// Stop the engine while the lone worker is mid-task; the remaining
	// tasks are queued or buffered in the work channel.
	cancel()
	close(release)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Engine did not stop")
	}

	terminal := 0
	for _, id := range ids {
		task, err := d.TaskStatus(id)
		if err != nil {
			t.Fatalf("TaskStatus failed: %v", err)
		}
		if task.Status == types.TaskStatusFailed {
			t.Errorf("Task %s failed at shutdown, want pending or completed", id)
		}
		if task.Terminal() {
			terminal++
		}
	}
	if terminal != 1 {
		t.Errorf("Terminal tasks after shutdown = %d, want 1 (only the in-flight task)", terminal)
	}

	agent, _ := reg.Get("solo-1")
	if agent.Efficiency != types.EfficiencyMax {
		t.Errorf("Efficiency = %v, want no failure penalty at shutdown", agent.Efficiency)
	}
}

func TestSimulatedHandler_HonorsCancellation(t *testing.T) {
	h := SimulatedHandler(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := h(ctx, types.NewTask("anything", nil, types.PriorityMedium))
	if err == nil {
		t.Error("Expected cancellation error")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Handler did not return promptly on cancellation")
	}
}
