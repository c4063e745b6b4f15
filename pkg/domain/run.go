package domain

import "time"

// RunStatus is the lifecycle status of a workflow run.
type RunStatus string

const (
	RunSubmitted RunStatus = "submitted"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// RunState is the persisted record of one workflow run.
type RunState struct {
	RunID       string       `json:"run_id"`
	Workflow    string       `json:"workflow"`
	Status      RunStatus    `json:"status"`
	State       *SharedState `json:"state"`
	Steps       []string     `json:"steps,omitempty"`
	Error       string       `json:"error,omitempty"`
	Remediation Remediation  `json:"remediation,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}
