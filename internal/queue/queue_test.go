package queue

import (
	"fmt"
	"testing"

	"github.com/studyflow/relay/pkg/types"
)

func newTask(taskType string, priority types.Priority) *types.Task {
	task := types.NewTask(taskType, nil, priority)
	task.ID = fmt.Sprintf("task-%s-%s", priority, taskType)
	return task
}

func TestEnqueueDequeue_PriorityOrder(t *testing.T) {
	q := New()

	// Interleave enqueues across all four lanes
	q.Enqueue(newTask("a", types.PriorityLow))
	q.Enqueue(newTask("b", types.PriorityMedium))
	q.Enqueue(newTask("c", types.PriorityCritical))
	q.Enqueue(newTask("d", types.PriorityHigh))
	q.Enqueue(newTask("e", types.PriorityCritical))
	q.Enqueue(newTask("f", types.PriorityLow))

	want := []string{
		"task-critical-c",
		"task-critical-e",
		"task-high-d",
		"task-medium-b",
		"task-low-a",
		"task-low-f",
	}

	for i, expected := range want {
		task := q.Dequeue()
		if task == nil {
			t.Fatalf("Dequeue %d returned nil, want %s", i, expected)
		}
		if task.ID != expected {
			t.Errorf("Dequeue %d = %s, want %s", i, task.ID, expected)
		}
	}

	if task := q.Dequeue(); task != nil {
		t.Errorf("Expected empty queue, got task %s", task.ID)
	}
}

func TestDequeue_FIFOWithinLane(t *testing.T) {
	q := New()

	for i := 0; i < 5; i++ {
		task := types.NewTask("step", nil, types.PriorityMedium)
		task.ID = fmt.Sprintf("task-%d", i)
		q.Enqueue(task)
	}

	for i := 0; i < 5; i++ {
		task := q.Dequeue()
		if task == nil {
			t.Fatalf("Dequeue %d returned nil", i)
		}
		expected := fmt.Sprintf("task-%d", i)
		if task.ID != expected {
			t.Errorf("Dequeue %d = %s, want %s", i, task.ID, expected)
		}
	}
}

func TestEnqueue_UnknownPriorityDefaultsToMedium(t *testing.T) {
	q := New()

	task := types.NewTask("odd", nil, types.Priority("urgent-ish"))
	task.ID = "task-odd"
	q.Enqueue(task)

	sizes := q.LaneSizes()
	if sizes[types.PriorityMedium] != 1 {
		t.Errorf("Expected unknown priority in medium lane, got lane sizes %v", sizes)
	}

	got := q.Dequeue()
	if got == nil || got.ID != "task-odd" {
		t.Fatalf("Expected task-odd, got %v", got)
	}
}

func TestSizeAndHasWork(t *testing.T) {
	q := New()

	if q.HasWork() {
		t.Error("Empty queue reports work")
	}
	if q.Size() != 0 {
		t.Errorf("Empty queue size = %d, want 0", q.Size())
	}

	q.Enqueue(newTask("a", types.PriorityHigh))
	q.Enqueue(newTask("b", types.PriorityLow))

	if !q.HasWork() {
		t.Error("Non-empty queue reports no work")
	}
	if q.Size() != 2 {
		t.Errorf("Size = %d, want 2", q.Size())
	}

	q.Dequeue()
	if q.Size() != 1 {
		t.Errorf("Size after dequeue = %d, want 1", q.Size())
	}
}

func TestRequeuePutsTaskAtFront(t *testing.T) {
	q := New()

	q.Enqueue(newTask("first", types.PriorityMedium))
	q.Enqueue(newTask("second", types.PriorityMedium))

	head := q.Dequeue()
	if head.ID != "task-medium-first" {
		t.Fatalf("Expected first, got %s", head.ID)
	}

	q.Requeue(head)

	if got := q.Dequeue(); got.ID != "task-medium-first" {
		t.Errorf("Expected requeued task at front, got %s", got.ID)
	}
	if got := q.Dequeue(); got.ID != "task-medium-second" {
		t.Errorf("Expected second next, got %s", got.ID)
	}
}
