// Package queue provides the four-lane priority queue for pending tasks
package queue

import (
	"sync"

	"github.com/studyflow/relay/pkg/types"
)

// Queue holds pending tasks in four strictly-ordered priority lanes.
// Enqueue appends to the lane matching the task's priority; Dequeue drains
// lanes in critical, high, medium, low order with FIFO order within a lane.
// All operations are safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	lanes map[types.Priority][]*types.Task
}

// New creates an empty queue
func New() *Queue {
	lanes := make(map[types.Priority][]*types.Task, len(types.Priorities))
	for _, p := range types.Priorities {
		lanes[p] = nil
	}
	return &Queue{lanes: lanes}
}

// Enqueue appends a task to the lane matching its priority.
// Unknown priorities land in the medium lane.
func (q *Queue) Enqueue(task *types.Task) {
	p := task.Priority.Normalize()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[p] = append(q.lanes[p], task)
}

// Dequeue removes and returns the head of the first non-empty lane in
// priority order, or nil if all lanes are empty.
func (q *Queue) Dequeue() *types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range types.Priorities {
		lane := q.lanes[p]
		if len(lane) == 0 {
			continue
		}
		task := lane[0]
		q.lanes[p] = lane[1:]
		return task
	}
	return nil
}

// Requeue puts a task back at the front of its lane, ahead of tasks that
// arrived after it. Used when a dequeued task could not be handed off.
func (q *Queue) Requeue(task *types.Task) {
	p := task.Priority.Normalize()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[p] = append([]*types.Task{task}, q.lanes[p]...)
}

// Size returns the total number of queued tasks across all lanes
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := 0
	for _, lane := range q.lanes {
		total += len(lane)
	}
	return total
}

// HasWork reports whether any lane is non-empty
func (q *Queue) HasWork() bool {
	return q.Size() > 0
}

// LaneSizes returns the per-lane queue depth, keyed by priority
func (q *Queue) LaneSizes() map[types.Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	sizes := make(map[types.Priority]int, len(q.lanes))
	for p, lane := range q.lanes {
		sizes[p] = len(lane)
	}
	return sizes
}
