package callbacks

import (
	"log"
	"sync"
)

// Priority defines callback execution order (lower = earlier)
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 50
	PriorityLow    Priority = 100
)

// registeredCallback holds a callback with its priority and metadata
type registeredCallback struct {
	callback Callback
	priority Priority
	name     string
	enabled  bool
}

// Registry manages lifecycle event callbacks. It provides thread-safe
// registration, unregistration, and dispatching of callbacks.
//
// The registry is designed for zero overhead when no callbacks are
// registered: dispatch checks for registered callbacks before doing
// any other work.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[EventType][]*registeredCallback
	logger    *log.Logger
}

// NewRegistry creates a new callback registry
func NewRegistry() *Registry {
	return &Registry{
		callbacks: make(map[EventType][]*registeredCallback),
	}
}

// SetLogger sets the logger for the registry
func (r *Registry) SetLogger(logger *log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers a callback for specific event types.
//
// Priority controls execution order: lower priority callbacks run first.
// The name is used for debugging and replacement; registering a callback
// with an existing name for the same event replaces it.
func (r *Registry) Register(callback Callback, events []EventType, priority Priority, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, event := range events {
		if r.callbacks[event] == nil {
			r.callbacks[event] = make([]*registeredCallback, 0, 4)
		}

		existingIndex := -1
		for i, cb := range r.callbacks[event] {
			if cb.name == name {
				existingIndex = i
				break
			}
		}

		reg := &registeredCallback{
			callback: callback,
			priority: priority,
			name:     name,
			enabled:  true,
		}

		if existingIndex >= 0 {
			r.callbacks[event][existingIndex] = reg
			r.logf("Updated callback '%s' for event %s", name, event)
		} else {
			r.callbacks[event] = insertSorted(r.callbacks[event], reg)
			r.logf("Registered callback '%s' for event %s", name, event)
		}
	}
}

// Unregister removes a callback by name for specific event types.
// If events is empty, the callback is removed from all event types.
func (r *Registry) Unregister(name string, events []EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(events) == 0 {
		for event, callbacks := range r.callbacks {
			r.callbacks[event] = removeByName(callbacks, name)
		}
		r.logf("Unregistered callback '%s' from all events", name)
		return
	}

	for _, event := range events {
		r.callbacks[event] = removeByName(r.callbacks[event], name)
		r.logf("Unregistered callback '%s' from event %s", name, event)
	}
}

// Enable enables a callback by name
func (r *Registry) Enable(name string) {
	r.setEnabled(name, true)
}

// Disable disables a callback by name
func (r *Registry) Disable(name string) {
	r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, callbacks := range r.callbacks {
		for _, cb := range callbacks {
			if cb.name == name {
				cb.enabled = enabled
			}
		}
	}
}

// DispatchTask invokes all registered callbacks for a task event.
// Returns the first non-nil error from any callback, but continues
// invoking remaining callbacks after an error. Callback errors never
// propagate into the execution path as failures.
func (r *Registry) DispatchTask(event EventType, ctx *TaskEventContext) error {
	r.mu.RLock()
	callbacks := r.callbacks[event]
	r.mu.RUnlock()

	// Fast path: no callbacks registered
	if len(callbacks) == 0 {
		return nil
	}

	var firstErr error
	for _, cb := range callbacks {
		if !cb.enabled {
			continue
		}
		if err := r.invokeCallback(cb.callback, event, ctx); err != nil {
			r.logf("Callback '%s' error on event %s: %v", cb.name, event, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DispatchAgent invokes all registered callbacks for an agent event
func (r *Registry) DispatchAgent(event EventType, ctx *AgentEventContext) error {
	r.mu.RLock()
	callbacks := r.callbacks[event]
	r.mu.RUnlock()

	if len(callbacks) == 0 {
		return nil
	}

	var firstErr error
	for _, cb := range callbacks {
		if !cb.enabled {
			continue
		}
		if err := r.invokeCallback(cb.callback, event, ctx); err != nil {
			r.logf("Callback '%s' error on event %s: %v", cb.name, event, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// invokeCallback invokes a single callback with panic recovery
func (r *Registry) invokeCallback(cb Callback, event EventType, ctx any) error {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logf("Callback panic on event %s: %v", event, recovered)
		}
	}()

	var err error
	switch event {
	case EventTaskCreated:
		err = cb.OnTaskCreated(ctx.(*TaskEventContext))
	case EventTaskAssigned:
		err = cb.OnTaskAssigned(ctx.(*TaskEventContext))
	case EventTaskStarted:
		err = cb.OnTaskStarted(ctx.(*TaskEventContext))
	case EventTaskCompleted:
		err = cb.OnTaskCompleted(ctx.(*TaskEventContext))
	case EventTaskFailed:
		err = cb.OnTaskFailed(ctx.(*TaskEventContext))
	case EventAgentRegistered:
		err = cb.OnAgentRegistered(ctx.(*AgentEventContext))
	case EventAgentStatusChanged:
		err = cb.OnAgentStatusChanged(ctx.(*AgentEventContext))
	}
	return err
}

// Count returns the number of callbacks registered for an event type
func (r *Registry) Count(event EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callbacks[event])
}

// RegisteredNames returns the names of all callbacks registered for an event type
func (r *Registry) RegisteredNames(event EventType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.callbacks[event]))
	for _, cb := range r.callbacks[event] {
		names = append(names, cb.name)
	}
	return names
}

// insertSorted inserts a callback into a list sorted by priority
func insertSorted(list []*registeredCallback, item *registeredCallback) []*registeredCallback {
	i := 0
	for i < len(list) && list[i].priority <= item.priority {
		i++
	}

	if i == len(list) {
		return append(list, item)
	}

	result := make([]*registeredCallback, 0, len(list)+1)
	result = append(result, list[:i]...)
	result = append(result, item)
	result = append(result, list[i:]...)
	return result
}

func removeByName(list []*registeredCallback, name string) []*registeredCallback {
	filtered := make([]*registeredCallback, 0, len(list))
	for _, cb := range list {
		if cb.name != name {
			filtered = append(filtered, cb)
		}
	}
	return filtered
}

// logf logs a message if a logger is configured
func (r *Registry) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
