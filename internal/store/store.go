// Package store persists the engine's durable state: versioned canonical
// records, versioned sector research, scoring results, follow-up questions,
// and agent execution logs.
//
// Two implementations exist: PostgresStore for production and SQLiteStore
// for local runs and tests. Both enforce the same append discipline:
// content-hash dedup within a key scope, and gapless monotonically
// increasing versions assigned by version-check-and-retry.
package store

import (
	"context"
	"sort"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// maxAppendAttempts bounds the recompute-and-retry loop when concurrent
// writers race on the same next version. Every collision means another
// writer committed, so the loop always makes global progress.
const maxAppendAttempts = 5

// ExecutionLogFilter narrows ListExecutionLogs. Zero-valued fields match
// everything.
type ExecutionLogFilter struct {
	BusinessID string
	SectorKey  string
	AgentType  string
	Limit      int
}

// Store is the persistence surface for the evaluation engine. Single-row
// lookups return (nil, nil) when no row matches.
type Store interface {
	// AppendCanonical stores rec as the next version for rec.BusinessID,
	// assigning ID, Version, and CreatedAt. If a record with the same
	// content hash already exists for the business, the existing record is
	// returned with created=false and nothing is written.
	AppendCanonical(ctx context.Context, rec *model.CanonicalRecord) (stored *model.CanonicalRecord, created bool, err error)
	LatestCanonical(ctx context.Context, businessID string) (*model.CanonicalRecord, error)
	CanonicalByHash(ctx context.Context, businessID, contentHash string) (*model.CanonicalRecord, error)

	// AppendResearch behaves like AppendCanonical with the key scope
	// (sector key, agent type).
	AppendResearch(ctx context.Context, rec *model.SectorResearchRecord) (stored *model.SectorResearchRecord, created bool, err error)
	LatestResearch(ctx context.Context, sectorKey string, agent model.AgentType) (*model.SectorResearchRecord, error)
	ResearchByHash(ctx context.Context, sectorKey string, agent model.AgentType, contentHash string) (*model.SectorResearchRecord, error)

	InsertScoring(ctx context.Context, rec *model.ScoringRecord) error
	ListScoring(ctx context.Context, businessID string) ([]model.ScoringRecord, error)

	InsertQuestions(ctx context.Context, questions []model.FollowUpQuestion) error
	ListQuestions(ctx context.Context, businessID string) ([]model.FollowUpQuestion, error)
	// RecordResponse moves a pending question to a terminal response status
	// and returns the updated question. Re-resolving an already-terminal
	// question is a validation error.
	RecordResponse(ctx context.Context, questionID string, status model.ResponseStatus, response string) (*model.FollowUpQuestion, error)

	InsertExecutionLog(ctx context.Context, entry *model.AgentExecutionLog) error
	ListExecutionLogs(ctx context.Context, filter ExecutionLogFilter) ([]model.AgentExecutionLog, error)

	Migrate(ctx context.Context) error
	Close() error
}

func validateCanonicalAppend(rec *model.CanonicalRecord) error {
	if rec == nil {
		return faults.NewValidation("record", "nil canonical record")
	}
	if rec.BusinessID == "" {
		return faults.NewValidation("business_id", "required")
	}
	if rec.ContentHash == "" {
		return faults.NewValidation("content_hash", "required")
	}
	return nil
}

func validateResearchAppend(rec *model.SectorResearchRecord) error {
	if rec == nil {
		return faults.NewValidation("record", "nil research record")
	}
	if rec.SectorKey == "" {
		return faults.NewValidation("sector_key", "required")
	}
	if !rec.AgentType.Valid() {
		return faults.NewValidation("agent_type", "unknown agent type %q", rec.AgentType)
	}
	if rec.ContentHash == "" {
		return faults.NewValidation("content_hash", "required")
	}
	if len(rec.Output) == 0 {
		return faults.NewValidation("output", "required")
	}
	return nil
}

// sortBySeverity orders questions most severe first, preserving relative
// order within a severity.
func sortBySeverity(questions []model.FollowUpQuestion) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Severity.Rank() < questions[j].Severity.Rank()
	})
}
