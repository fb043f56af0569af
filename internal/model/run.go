package model

import "time"

// PhaseStatus is the state of one evaluation pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult records the outcome of one pipeline phase.
type PhaseResult struct {
	Name     string      `json:"name"`
	Status   PhaseStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// SyncStatus reports the deal-desk writeback outcome for an eligible target.
type SyncStatus struct {
	Attempted bool   `json:"attempted"`
	DealDesk  bool   `json:"deal_desk"`
	CRM       bool   `json:"crm"`
	LastError string `json:"last_error,omitempty"`
}

// EvaluationResult is the final output of one listing evaluation run.
type EvaluationResult struct {
	RunID      string             `json:"run_id"`
	BusinessID string             `json:"business_id"`
	Record     *CanonicalRecord   `json:"record,omitempty"`
	Deduped    bool               `json:"deduped"` // canonical write was a hash-match no-op
	Scoring    *ScoringRecord     `json:"scoring,omitempty"`
	Eligible   bool               `json:"eligible"`
	Questions  []FollowUpQuestion `json:"questions,omitempty"`
	Sync       SyncStatus         `json:"sync"`
	Phases     []PhaseResult      `json:"phases"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Error      string             `json:"error,omitempty"`
}
