// Package workflow coordinates multi-step task sequences over the dispatcher
package workflow

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/studyflow/relay/internal/dispatch"
	"github.com/studyflow/relay/internal/events"
	"github.com/studyflow/relay/pkg/telemetry"
	"github.com/studyflow/relay/pkg/types"
)

// Step delegation outcomes
const (
	StepDelegated = "delegated"
	StepBlocked   = "blocked"
	StepFailed    = "failed"
)

// Engine executes statically-registered workflow definitions. Steps are
// delegated through the dispatcher; a step is released once every declared
// prerequisite has been queued in the same run. Queuing, not completion,
// satisfies a dependency: the engine orders dispatch, it does not wait for
// upstream results.
type Engine struct {
	mu         sync.RWMutex
	defs       map[string]types.WorkflowDefinition
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus
	logger     *log.Logger
}

// New creates a workflow engine over the given dispatcher.
// The bus is optional; a nil bus disables event publication.
func New(dispatcher *dispatch.Dispatcher, bus *events.Bus, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		defs:       make(map[string]types.WorkflowDefinition),
		dispatcher: dispatcher,
		bus:        bus,
		logger:     logger,
	}
}

// Register adds a workflow definition, replacing any existing definition
// with the same name. Dependencies may only reference declared steps.
func (e *Engine) Register(def types.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("registering workflow: name is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("registering workflow %s: at least one step is required", def.Name)
	}

	declared := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if declared[step] {
			return fmt.Errorf("registering workflow %s: duplicate step %q", def.Name, step)
		}
		declared[step] = true
	}
	for step, prereqs := range def.Dependencies {
		if !declared[step] {
			return fmt.Errorf("registering workflow %s: dependency on undeclared step %q", def.Name, step)
		}
		for _, prereq := range prereqs {
			if !declared[prereq] {
				return fmt.Errorf("registering workflow %s: step %q depends on undeclared step %q", def.Name, step, prereq)
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs[def.Name] = def
	return nil
}

// Definitions returns the names of all registered workflows
func (e *Engine) Definitions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.defs))
	for name := range e.defs {
		names = append(names, name)
	}
	return names
}

// Execute delegates every step of the named workflow and returns the
// per-step delegation record. Steps are released in dependency order
// regardless of declaration order; a step whose prerequisite could not
// be delegated is reported blocked, and a step the dispatcher rejected
// is reported failed. Execute itself fails only on an unknown workflow.
func (e *Engine) Execute(ctx context.Context, name string, parameters map[string]any) (map[string]types.StepResult, error) {
	e.mu.RLock()
	def, ok := e.defs[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("executing workflow: %q is not registered", name)
	}

	ctx, span := telemetry.StartWorkflowSpan(ctx, name)
	defer span.End()

	e.logger.Printf("🔀 Executing workflow %s (%d steps)", name, len(def.Steps))
	e.publish(events.EventWorkflowStarted, name, len(def.Steps))

	results := make(map[string]types.StepResult, len(def.Steps))
	queued := make(map[string]bool, len(def.Steps))

	// Walk declaration order, re-scanning until a full pass makes no
	// progress. Dependencies release steps regardless of where they
	// appear in the declaration.
	for progress := true; progress; {
		progress = false
		for _, step := range def.Steps {
			if _, settled := results[step]; settled {
				continue
			}
			if !e.prereqsQueued(def, step, queued) {
				continue
			}

			taskID, err := e.dispatcher.Delegate(ctx, step, e.stepParameters(name, step, parameters), types.PriorityMedium)
			if err != nil {
				e.logger.Printf("⚠️  Workflow %s step %s not delegated: %v", name, step, err)
				results[step] = types.StepResult{Status: StepFailed, Error: err.Error()}
			} else {
				results[step] = types.StepResult{TaskID: taskID, Status: StepDelegated}
				queued[step] = true
			}
			progress = true
		}
	}

	// Whatever is left is waiting on a prerequisite that never queued
	for _, step := range def.Steps {
		if _, settled := results[step]; !settled {
			results[step] = types.StepResult{Status: StepBlocked}
		}
	}

	return results, nil
}

// prereqsQueued reports whether every prerequisite of step has been
// queued during this run
func (e *Engine) prereqsQueued(def types.WorkflowDefinition, step string, queued map[string]bool) bool {
	for _, prereq := range def.Dependencies[step] {
		if !queued[prereq] {
			return false
		}
	}
	return true
}

// stepParameters annotates the workflow parameters with the run context
func (e *Engine) stepParameters(workflow, step string, parameters map[string]any) map[string]any {
	merged := make(map[string]any, len(parameters)+2)
	for k, v := range parameters {
		merged[k] = v
	}
	merged["workflow"] = workflow
	merged["workflow_step"] = step
	return merged
}

func (e *Engine) publish(eventType events.EventType, workflow string, steps int) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewEvent(eventType, "", "", map[string]any{
		"workflow": workflow,
		"steps":    steps,
	}))
}
