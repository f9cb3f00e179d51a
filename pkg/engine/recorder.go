package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/common"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/rs/zerolog/log"
)

const finalizeTimeout = 10 * time.Second

// Recorder owns the execution log row of a run
type Recorder struct {
	logs    repository.ExecutionLogRepository
	archive Archiver
	now     func() time.Time
}

// NewRecorder creates a Recorder. archive may be nil.
func NewRecorder(logs repository.ExecutionLogRepository, archive Archiver) *Recorder {
	return &Recorder{logs: logs, archive: archive, now: time.Now}
}

// Start writes the running row before any node executes
func (r *Recorder) Start(ctx context.Context, agentId, userId, triggeredBy string) (*types.ExecutionLog, error) {
	entry := &types.ExecutionLog{
		Id:          common.GenerateExecutionID(),
		AgentId:     agentId,
		UserId:      userId,
		Status:      types.ExecutionRunning,
		TriggeredBy: triggeredBy,
		StartTime:   r.now().UTC(),
	}
	if err := r.logs.CreateExecutionLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("create execution log: %w", err)
	}
	return entry, nil
}

// Finish records the terminal status and snapshot. It runs on a context
// detached from ctx so an expired run deadline still gets its row closed.
func (r *Recorder) Finish(ctx context.Context, entry *types.ExecutionLog, status types.ExecutionStatus, errMsg string, snapshot types.ExecutionSnapshot) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	details, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode execution snapshot: %w", err)
	}

	end := r.now().UTC()
	if err := r.logs.FinishExecutionLog(ctx, entry.Id, status, errMsg, details, end); err != nil {
		return fmt.Errorf("finish execution log %s: %w", entry.Id, err)
	}
	entry.Status = status
	entry.ErrorMessage = errMsg
	entry.Details = details
	entry.EndTime = &end

	if r.archive != nil {
		if err := r.archive.PutSnapshot(ctx, entry.AgentId, entry.Id, details); err != nil {
			log.Warn().Err(err).Str("log_id", entry.Id).Msg("failed to archive execution snapshot")
		}
	}
	return nil
}
