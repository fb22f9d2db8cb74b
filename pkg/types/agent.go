package types

// AgentStatus represents the lifecycle state of an agent
type AgentStatus string

const (
	AgentStatusInitializing AgentStatus = "initializing"
	AgentStatusActive       AgentStatus = "active"
	AgentStatusProcessing   AgentStatus = "processing"
	AgentStatusError        AgentStatus = "error"
	AgentStatusIdle         AgentStatus = "idle"
	AgentStatusStandby      AgentStatus = "standby"
)

// Selectable reports whether the dispatcher may route work to an agent
// in this state. Idle and standby agents are administratively parked;
// initializing agents have not finished registration.
func (s AgentStatus) Selectable() bool {
	switch s {
	case AgentStatusActive, AgentStatusProcessing, AgentStatusError:
		return true
	default:
		return false
	}
}

// Efficiency score bounds. The score never leaves this range.
const (
	EfficiencyMin = 0.1
	EfficiencyMax = 1.0
)

// Agent is a capability-tagged executor with an evolving efficiency score
type Agent struct {
	ID             string      `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	Type           string      `json:"type" db:"type"`
	Capabilities   []string    `json:"capabilities" db:"capabilities"`
	Specialization string      `json:"specialization,omitempty" db:"specialization"`
	Priority       Priority    `json:"priority" db:"priority"`
	Status         AgentStatus `json:"status" db:"status"`
	Efficiency     float64     `json:"efficiency" db:"efficiency"`
	History        []TaskRecord `json:"history,omitempty" db:"-"`
	RegisteredAt   int64       `json:"registered_at" db:"registered_at"`
}

// TaskRecord is one entry in an agent's accumulated task history
type TaskRecord struct {
	TaskID      string `json:"task_id"`
	TaskType    string `json:"task_type"`
	Success     bool   `json:"success"`
	DurationMs  int64  `json:"duration_ms"`
	CompletedAt int64  `json:"completed_at"`
}

// ClampEfficiency bounds a score to [EfficiencyMin, EfficiencyMax]
func ClampEfficiency(score float64) float64 {
	if score < EfficiencyMin {
		return EfficiencyMin
	}
	if score > EfficiencyMax {
		return EfficiencyMax
	}
	return score
}
