package dispatch

import (
	"sync"

	"github.com/studyflow/relay/pkg/types"
)

// Tracker indexes every delegated task by ID so callers can poll status
// after the fire-and-forget delegation returns. Mutation goes through
// Update so the dispatcher and execution engine never race on task state.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[string]*types.Task
}

// NewTracker creates an empty task tracker
func NewTracker() *Tracker {
	return &Tracker{tasks: make(map[string]*types.Task)}
}

// Add registers a task with the tracker
func (tr *Tracker) Add(task *types.Task) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.tasks[task.ID] = task
}

// Get returns a copy of the task with the given ID
func (tr *Tracker) Get(id string) (types.Task, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	task, ok := tr.tasks[id]
	if !ok {
		return types.Task{}, false
	}
	return *task, true
}

// Update applies fn to the task with the given ID under the tracker lock
func (tr *Tracker) Update(id string, fn func(*types.Task)) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	task, ok := tr.tasks[id]
	if !ok {
		return false
	}
	fn(task)
	return true
}

// Len returns the number of tracked tasks
func (tr *Tracker) Len() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.tasks)
}
