// Package agentlog persists the audit trail of external capability calls.
// Writes are best-effort: a failed audit insert is logged and swallowed so
// it never fails the work it describes.
package agentlog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// writeTimeout bounds the audit insert once detached from the caller's
// context.
const writeTimeout = 5 * time.Second

// Sink receives finished execution log entries.
type Sink interface {
	InsertExecutionLog(ctx context.Context, entry *model.AgentExecutionLog) error
}

// Recorder writes execution logs to a sink. A nil *Recorder is a no-op, so
// callers that run without auditing skip the nil checks.
type Recorder struct {
	sink Sink
}

// New returns a recorder writing to sink.
func New(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Begin returns an entry stamped with the call start time. The caller fills
// in BusinessID, SectorKey, or Metadata as appropriate and hands the entry
// to Finish when the call returns.
func Begin(agentName, agentType string) *model.AgentExecutionLog {
	return &model.AgentExecutionLog{
		AgentName: agentName,
		AgentType: agentType,
		StartedAt: time.Now().UTC(),
	}
}

// StatusFor maps a capability call error to its execution status.
func StatusFor(err error) model.ExecutionStatus {
	switch {
	case err == nil:
		return model.ExecSuccess
	case faults.IsCapabilityTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return model.ExecTimeout
	default:
		return model.ExecFailure
	}
}

// Finish stamps the entry terminal and persists it. The insert runs on a
// context detached from the caller's, so an expired call deadline does not
// also lose the audit row.
func (r *Recorder) Finish(ctx context.Context, entry *model.AgentExecutionLog, status model.ExecutionStatus, callErr error) {
	entry.CompletedAt = time.Now().UTC()
	entry.DurationMS = entry.CompletedAt.Sub(entry.StartedAt).Milliseconds()
	entry.Status = status
	if callErr != nil {
		entry.ErrorMessage = callErr.Error()
	}

	if r == nil || r.sink == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.sink.InsertExecutionLog(writeCtx, entry); err != nil {
		zap.L().Warn("agentlog: insert failed",
			zap.String("agent_name", entry.AgentName),
			zap.String("agent_type", entry.AgentType),
			zap.Error(err),
		)
	}
}
