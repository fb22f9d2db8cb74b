package types

// WorkflowDefinition is a named, statically-declared sequence of dependent steps
type WorkflowDefinition struct {
	Name         string              `json:"name"`
	Steps        []string            `json:"steps"`
	Dependencies map[string][]string `json:"dependencies,omitempty"`
}

// StepResult records the outcome of delegating one workflow step
type StepResult struct {
	TaskID string `json:"task_id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
