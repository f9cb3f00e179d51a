package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/common"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/metrics"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultWorkers      = 4
	defaultBatchSize    = 50
	defaultLockTTL      = 10 * time.Minute
)

// Executor runs one flow. Implemented by engine.Engine.
type Executor interface {
	ExecuteFlow(ctx context.Context, agentId, userId, triggeredBy string) (*types.ExecutionResult, error)
}

// Poller starts due scheduled runs. A run starts only after the poller
// claims its due time in the schedule store, so a stale listing never runs
// the same due time twice. The Redis lock keeps replicas from racing on the
// claim; without Redis an in-process set keeps a slow run from overlapping.
type Poller struct {
	schedules repository.ScheduleRepository
	executor  Executor
	locks     *common.RedisLock
	cfg       types.SchedulerConfig
	now       func() time.Time

	inflight sync.Map
}

func NewPoller(schedules repository.ScheduleRepository, executor Executor, rdb *common.RedisClient, cfg types.SchedulerConfig) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	p := &Poller{
		schedules: schedules,
		executor:  executor,
		cfg:       cfg,
		now:       time.Now,
	}
	if rdb != nil {
		p.locks = common.NewRedisLock(rdb)
	}
	return p
}

// Start runs the poll loop until ctx is done. Call as a goroutine.
func (p *Poller) Start(ctx context.Context) {
	log.Info().Dur("interval", p.cfg.PollInterval).Int("workers", p.cfg.Workers).Msg("schedule poller started")

	t := time.NewTicker(p.cfg.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("schedule poller stopped")
			return
		case <-t.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs every due schedule it can lock and claim, and returns how many
// runs it started
func (p *Poller) Poll(ctx context.Context) int {
	due, err := p.schedules.ListDueSchedules(ctx, p.now().UTC(), p.cfg.BatchSize)
	if err != nil {
		log.Warn().Err(err).Msg("schedule poller: failed to list due schedules")
		return 0
	}
	if len(due) == 0 {
		log.Debug().Msg("schedule poller: nothing due")
		return 0
	}

	sem := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup
	started := 0

	for _, s := range due {
		sem <- struct{}{}

		if !p.lock(ctx, s.AgentId) {
			<-sem
			metrics.ScheduledRuns.WithLabelValues("skipped").Inc()
			continue
		}

		ranAt := p.now().UTC()
		claimed, err := p.schedules.ClaimSchedule(ctx, s.AgentId, s.NextRunAt, ranAt, s.Next(ranAt))
		if err != nil || !claimed {
			p.unlock(s.AgentId)
			<-sem
			if err != nil {
				log.Warn().Err(err).Str("agent_id", s.AgentId).Msg("schedule poller: failed to claim schedule")
			}
			metrics.ScheduledRuns.WithLabelValues("skipped").Inc()
			continue
		}
		started++

		wg.Add(1)
		go func(s types.Schedule) {
			defer wg.Done()
			defer func() { <-sem }()
			defer p.unlock(s.AgentId)

			p.run(ctx, s)
		}(s)
	}

	wg.Wait()
	return started
}

func (p *Poller) run(ctx context.Context, s types.Schedule) {
	result, err := p.executor.ExecuteFlow(ctx, s.AgentId, s.UserId, types.TriggeredBySchedule)
	switch {
	case err != nil:
		metrics.ScheduledRuns.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("agent_id", s.AgentId).Msg("schedule poller: run could not start")
	case result.Status != types.ExecutionSuccess:
		metrics.ScheduledRuns.WithLabelValues("failed").Inc()
		log.Warn().Str("agent_id", s.AgentId).Str("log_id", result.LogId).Str("error", result.Error).Msg("schedule poller: run failed")
	default:
		metrics.ScheduledRuns.WithLabelValues("success").Inc()
	}
}

func (p *Poller) lock(ctx context.Context, agentId string) bool {
	if _, running := p.inflight.LoadOrStore(agentId, struct{}{}); running {
		return false
	}
	if p.locks == nil {
		return true
	}

	err := p.locks.Acquire(ctx, common.Keys.SchedulePollLock(agentId), common.RedisLockOptions{
		TtlS: max(1, int(p.cfg.LockTTL/time.Second)),
	})
	if err != nil {
		p.inflight.Delete(agentId)
		return false
	}
	return true
}

func (p *Poller) unlock(agentId string) {
	defer p.inflight.Delete(agentId)
	if p.locks == nil {
		return
	}
	if err := p.locks.Release(common.Keys.SchedulePollLock(agentId)); err != nil {
		log.Warn().Err(err).Str("agent_id", agentId).Msg("schedule poller: failed to release lock")
	}
}
