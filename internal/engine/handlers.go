package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/studyflow/relay/pkg/types"
)

// Handler executes one task and returns its result. Handlers must honor
// ctx cancellation; the engine enforces the per-task timeout through it.
type Handler func(ctx context.Context, task *types.Task) (any, error)

// HandlerRegistry maps task types to their handlers. Lookup falls through
// to the default handler when no type-specific handler is registered.
type HandlerRegistry struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	defaultFn Handler
}

// NewHandlerRegistry creates a handler registry with the simulated
// default handler
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers:  make(map[string]Handler),
		defaultFn: SimulatedHandler(50 * time.Millisecond),
	}
}

// Register binds a handler to a task type, replacing any existing binding
func (r *HandlerRegistry) Register(taskType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = handler
}

// SetDefault replaces the fallback handler used for unregistered task types
func (r *HandlerRegistry) SetDefault(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultFn = handler
}

// Resolve returns the handler for a task type
func (r *HandlerRegistry) Resolve(taskType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[taskType]; ok {
		return h
	}
	return r.defaultFn
}

// SimulatedHandler returns a handler that models work by sleeping for the
// given duration and then reporting success. It is the default when no
// real handler is wired for a task type, which keeps the coordination
// loop exercisable without live agent backends.
func SimulatedHandler(duration time.Duration) Handler {
	return func(ctx context.Context, task *types.Task) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(duration):
		}

		return map[string]any{
			"task_id":   task.ID,
			"task_type": task.Type,
			"agent":     task.AssignedAgent,
			"outcome":   fmt.Sprintf("simulated completion of %s", task.Type),
		}, nil
	}
}
