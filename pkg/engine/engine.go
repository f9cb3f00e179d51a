package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/flow"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/metrics"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/rs/zerolog/log"
)

const defaultRunTimeout = 5 * time.Minute

// Dependencies are the collaborators an Engine is built from
type Dependencies struct {
	Agents      repository.AgentRepository
	Logs        repository.ExecutionLogRepository
	Mailbox     Mailbox
	Classifiers Classifiers
	Archive     Archiver
}

// Engine runs stored flows end to end
type Engine struct {
	agents       repository.AgentRepository
	recorder     *Recorder
	orchestrator *Orchestrator
	runTimeout   time.Duration
}

func New(cfg types.EngineConfig, deps Dependencies) *Engine {
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}

	return &Engine{
		agents:   deps.Agents,
		recorder: NewRecorder(deps.Logs, deps.Archive),
		orchestrator: NewOrchestrator(
			NewTriggerExecutor(deps.Mailbox, cfg.FetchWorkers),
			NewClassifierExecutor(deps.Classifiers, cfg.ClassifyWorkers),
			NewActionExecutor(deps.Mailbox),
		),
		runTimeout: runTimeout,
	}
}

// ExecuteFlow runs an agent's flow for userId. The error is non-nil only when
// the execution log could not be created; every other failure is reported
// through the result status and the log.
func (e *Engine) ExecuteFlow(ctx context.Context, agentId, userId, triggeredBy string) (*types.ExecutionResult, error) {
	entry, err := e.recorder.Start(ctx, agentId, userId, triggeredBy)
	if err != nil {
		return nil, err
	}
	metrics.ExecutionsStarted.WithLabelValues(triggeredBy).Inc()

	execCtx := types.NewExecutionContext(agentId, userId)
	runErr := e.run(ctx, agentId, userId, execCtx)

	status := types.ExecutionSuccess
	if runErr != nil {
		status = types.ExecutionFailed
		execCtx.Error = runErr.Error()
	}

	summary := execCtx.Summarize()
	snapshot := types.ExecutionSnapshot{TriggeredBy: triggeredBy, Summary: summary, Context: execCtx}
	if err := e.recorder.Finish(ctx, entry, status, execCtx.Error, snapshot); err != nil {
		log.Error().Err(err).Str("log_id", entry.Id).Msg("failed to finalize execution log")
	}

	finished := time.Now().UTC()
	if entry.EndTime != nil {
		finished = *entry.EndTime
	}
	duration := finished.Sub(entry.StartTime)

	metrics.ExecutionsCompleted.WithLabelValues(triggeredBy, string(status)).Inc()
	metrics.ExecutionDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	metrics.ItemsProcessed.Observe(float64(len(execCtx.Items)))

	event := log.Info()
	if runErr != nil {
		event = log.Warn().Err(runErr)
	}
	event.Str("agent_id", agentId).
		Str("user_id", userId).
		Str("log_id", entry.Id).
		Str("status", string(status)).
		Int("items", summary.TotalItems).
		Int("actions", len(execCtx.Actions)).
		Dur("duration", duration).
		Msg("flow execution finished")

	return &types.ExecutionResult{
		LogId:      entry.Id,
		Status:     status,
		Context:    execCtx,
		Summary:    summary,
		Error:      execCtx.Error,
		StartedAt:  entry.StartTime,
		FinishedAt: finished,
	}, nil
}

func (e *Engine) run(ctx context.Context, agentId, userId string, execCtx *types.ExecutionContext) error {
	agent, err := e.agents.GetAgent(ctx, agentId)
	if err != nil {
		return err
	}
	if agent.UserId != userId {
		return &types.ErrAgentNotFound{AgentId: agentId}
	}

	vf, err := flow.Validate(agent.Flow)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	err = e.orchestrator.Run(runCtx, vf, execCtx)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("execution timed out after %s", e.runTimeout)
	}
	return err
}
