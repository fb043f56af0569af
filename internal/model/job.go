package model

import "time"

// JobState is the lifecycle state of an async research job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state is final. Terminal jobs never change
// again; their result or error snapshot is immutable.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ResearchJob is the pollable handle for one research orchestration.
type ResearchJob struct {
	ID                string           `json:"id"`
	SectorKey         string           `json:"sector_key"`
	SectorDescription string           `json:"sector_description"`
	State             JobState         `json:"state"`
	Result            *ResearchOutcome `json:"result,omitempty"` // completed only
	Error             string           `json:"error,omitempty"`  // failed only
	CreatedAt         time.Time        `json:"created_at"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}
