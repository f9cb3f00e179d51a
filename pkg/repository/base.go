package repository

import (
	"context"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// AgentRepository manages stored flows
type AgentRepository interface {
	GetAgent(ctx context.Context, agentId string) (*types.Agent, error)
	SaveAgent(ctx context.Context, agent *types.Agent) error
	ListAgents(ctx context.Context, userId string) ([]types.Agent, error)
}

// ExecutionLogRepository manages one row per flow run
type ExecutionLogRepository interface {
	CreateExecutionLog(ctx context.Context, log *types.ExecutionLog) error
	FinishExecutionLog(ctx context.Context, logId string, status types.ExecutionStatus, errorMessage string, details []byte, endTime time.Time) error
	GetExecutionLog(ctx context.Context, logId string) (*types.ExecutionLog, error)
	ListExecutionLogs(ctx context.Context, agentId, userId string, limit int) ([]types.ExecutionLog, error)
}

// OAuthTokenRepository stores mailbox credentials, one per (user, provider)
type OAuthTokenRepository interface {
	GetOAuthToken(ctx context.Context, userId, provider string) (*types.OAuthToken, error)
	SaveOAuthToken(ctx context.Context, token *types.OAuthToken) error

	// SwapOAuthToken replaces the stored token only if its updated_at still
	// equals prevUpdatedAt. Returns false when another writer got there first.
	SwapOAuthToken(ctx context.Context, token *types.OAuthToken, prevUpdatedAt time.Time) (bool, error)
}

// APIKeyRepository stores classification provider keys. GetAPIKey returns
// nil, nil when the user has no key for the provider.
type APIKeyRepository interface {
	GetAPIKey(ctx context.Context, userId, provider string) (*types.APIKey, error)
	SaveAPIKey(ctx context.Context, key *types.APIKey) error
}

// ScheduleRepository stores recurring run definitions
type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, schedule *types.Schedule) error
	ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]types.Schedule, error)
	// ClaimSchedule moves a schedule from dueAt to nextRunAt. It reports false
	// when next_run_at no longer equals dueAt, i.e. another poller claimed it.
	ClaimSchedule(ctx context.Context, agentId string, dueAt, lastRunAt, nextRunAt time.Time) (bool, error)
}

// BackendRepository is the full persistence contract used by the gateway
type BackendRepository interface {
	AgentRepository
	ExecutionLogRepository
	OAuthTokenRepository
	APIKeyRepository
	ScheduleRepository

	Ping(ctx context.Context) error
	Close() error
}

// Timestamps round-trip through Postgres at microsecond precision
func dbNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
