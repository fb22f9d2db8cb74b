// Package registry manages the pool of capability-tagged agents
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/studyflow/relay/pkg/types"
)

// Registration holds the inputs for registering an agent
type Registration struct {
	ID             string
	Name           string
	Type           string
	Capabilities   []string
	Specialization string
	Priority       types.Priority
}

// Registry holds the agent pool. Registration is idempotent on agent ID:
// re-registering an existing ID updates its configuration in place.
// Status and efficiency mutation go through the registry so the dispatcher
// and execution engine never race on agent state.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*types.Agent
	order  []string // registration order, drives stable ranking ties
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		agents: make(map[string]*types.Agent),
	}
}

// Register adds an agent or updates the configuration of an existing one.
// New agents pass through initializing and come up active with a full
// efficiency score; re-registration preserves efficiency, status, and history.
func (r *Registry) Register(reg Registration) (*types.Agent, error) {
	if reg.ID == "" {
		return nil, fmt.Errorf("registering agent: id is required")
	}
	if len(reg.Capabilities) == 0 {
		return nil, fmt.Errorf("registering agent %s: at least one capability is required", reg.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.agents[reg.ID]; ok {
		existing.Name = reg.Name
		existing.Type = reg.Type
		existing.Capabilities = append([]string(nil), reg.Capabilities...)
		existing.Specialization = reg.Specialization
		existing.Priority = reg.Priority.Normalize()
		return existing, nil
	}

	agent := &types.Agent{
		ID:             reg.ID,
		Name:           reg.Name,
		Type:           reg.Type,
		Capabilities:   append([]string(nil), reg.Capabilities...),
		Specialization: reg.Specialization,
		Priority:       reg.Priority.Normalize(),
		Status:         types.AgentStatusInitializing,
		Efficiency:     types.EfficiencyMax,
		RegisteredAt:   time.Now().Unix(),
	}
	r.agents[reg.ID] = agent
	r.order = append(r.order, reg.ID)

	// Registration is synchronous; there is no warm-up work to wait for
	agent.Status = types.AgentStatusActive

	return agent, nil
}

// Get returns the agent with the given ID
func (r *Registry) Get(id string) (*types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	return agent, ok
}

// List returns all agents in registration order
func (r *Registry) List() []*types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*types.Agent, 0, len(r.order))
	for _, id := range r.order {
		agents = append(agents, r.agents[id])
	}
	return agents
}

// Candidates returns selectable agents in registration order. Agents parked
// in idle or standby, or still initializing, are skipped.
func (r *Registry) Candidates() []*types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*types.Agent
	for _, id := range r.order {
		if agent := r.agents[id]; agent.Status.Selectable() {
			out = append(out, agent)
		}
	}
	return out
}

// RankedCandidates returns selectable agents ordered by efficiency descending.
// Ties preserve registration order.
func (r *Registry) RankedCandidates() []*types.Agent {
	candidates := r.Candidates()
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Efficiency > candidates[j].Efficiency
	})
	return candidates
}

// SetStatus transitions an agent to the given lifecycle state and returns
// the state it left, so callers can report the transition
func (r *Registry) SetStatus(id string, status types.AgentStatus) (types.AgentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return "", fmt.Errorf("setting status: agent %s not registered", id)
	}
	prev := agent.Status
	agent.Status = status
	return prev, nil
}

// AdjustEfficiency nudges an agent's efficiency score by delta, clamped to
// [EfficiencyMin, EfficiencyMax], and returns the new score.
func (r *Registry) AdjustEfficiency(id string, delta float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return 0, fmt.Errorf("adjusting efficiency: agent %s not registered", id)
	}
	agent.Efficiency = types.ClampEfficiency(agent.Efficiency + delta)
	return agent.Efficiency, nil
}

// RecordOutcome appends a task record to the agent's history and applies
// the post-execution state transition: a successful run returns the agent
// to active (self-healing out of error); a failed run marks it error.
// Returns the state the agent left.
func (r *Registry) RecordOutcome(id string, record types.TaskRecord) (types.AgentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return "", fmt.Errorf("recording outcome: agent %s not registered", id)
	}

	prev := agent.Status
	agent.History = append(agent.History, record)
	if record.Success {
		agent.Status = types.AgentStatusActive
	} else {
		agent.Status = types.AgentStatusError
	}
	return prev, nil
}

// StatusCounts tallies agents by lifecycle state
func (r *Registry) StatusCounts() map[types.AgentStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[types.AgentStatus]int)
	for _, agent := range r.agents {
		counts[agent.Status]++
	}
	return counts
}

// Len returns the number of registered agents
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
