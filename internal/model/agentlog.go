package model

import "time"

// ExecutionStatus is the terminal status of one capability invocation.
type ExecutionStatus string

const (
	ExecSuccess ExecutionStatus = "success"
	ExecFailure ExecutionStatus = "failure"
	ExecPartial ExecutionStatus = "partial"
	ExecTimeout ExecutionStatus = "timeout"
)

// AgentExecutionLog is the audit record for one external capability call.
// Written once on completion; never mutated.
type AgentExecutionLog struct {
	ID           string          `json:"id"`
	AgentName    string          `json:"agent_name"`
	AgentType    string          `json:"agent_type"` // extraction, evaluation, research, synthesis
	BusinessID   string          `json:"business_id,omitempty"`
	SectorKey    string          `json:"sector_key,omitempty"`
	Status       ExecutionStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  time.Time       `json:"completed_at"`
	DurationMS   int64           `json:"duration_ms"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}
