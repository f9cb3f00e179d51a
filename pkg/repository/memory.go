package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// MemoryBackend implements BackendRepository using in-memory storage.
// This is used for local mode and tests.
type MemoryBackend struct {
	mu        sync.RWMutex
	agents    map[string]types.Agent
	logs      map[string]types.ExecutionLog
	tokens    map[string]types.OAuthToken
	apiKeys   map[string]types.APIKey
	schedules map[string]types.Schedule
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		agents:    make(map[string]types.Agent),
		logs:      make(map[string]types.ExecutionLog),
		tokens:    make(map[string]types.OAuthToken),
		apiKeys:   make(map[string]types.APIKey),
		schedules: make(map[string]types.Schedule),
	}
}

func credentialKey(userId, provider string) string {
	return provider + ":" + userId
}

func (m *MemoryBackend) Ping(ctx context.Context) error { return nil }
func (m *MemoryBackend) Close() error                    { return nil }

func (m *MemoryBackend) GetAgent(ctx context.Context, agentId string) (*types.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[agentId]
	if !ok {
		return nil, &types.ErrAgentNotFound{AgentId: agentId}
	}
	return &a, nil
}

func (m *MemoryBackend) SaveAgent(ctx context.Context, agent *types.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := dbNow()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	m.agents[agent.Id] = *agent
	return nil
}

func (m *MemoryBackend) ListAgents(ctx context.Context, userId string) ([]types.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var agents []types.Agent
	for _, a := range m.agents {
		if a.UserId == userId {
			agents = append(agents, a)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.Before(agents[j].CreatedAt) })
	return agents, nil
}

func (m *MemoryBackend) CreateExecutionLog(ctx context.Context, l *types.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[l.Id] = *l
	return nil
}

func (m *MemoryBackend) FinishExecutionLog(ctx context.Context, logId string, status types.ExecutionStatus, errorMessage string, details []byte, endTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[logId]
	if !ok {
		return &types.ErrExecutionLogNotFound{LogId: logId}
	}
	l.Status = status
	l.ErrorMessage = errorMessage
	l.Details = append([]byte(nil), details...)
	l.EndTime = &endTime
	m.logs[logId] = l
	return nil
}

func (m *MemoryBackend) GetExecutionLog(ctx context.Context, logId string) (*types.ExecutionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.logs[logId]
	if !ok {
		return nil, &types.ErrExecutionLogNotFound{LogId: logId}
	}
	return &l, nil
}

func (m *MemoryBackend) ListExecutionLogs(ctx context.Context, agentId, userId string, limit int) ([]types.ExecutionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}

	var logs []types.ExecutionLog
	for _, l := range m.logs {
		if l.AgentId == agentId && l.UserId == userId {
			logs = append(logs, l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].StartTime.After(logs[j].StartTime) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (m *MemoryBackend) GetOAuthToken(ctx context.Context, userId, provider string) (*types.OAuthToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[credentialKey(userId, provider)]
	if !ok {
		return nil, &types.ErrTokenNotFound{UserId: userId, Provider: provider}
	}
	return &t, nil
}

func (m *MemoryBackend) SaveOAuthToken(ctx context.Context, t *types.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.UpdatedAt = dbNow()
	m.tokens[credentialKey(t.UserId, t.Provider)] = *t
	return nil
}

func (m *MemoryBackend) SwapOAuthToken(ctx context.Context, t *types.OAuthToken, prevUpdatedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credentialKey(t.UserId, t.Provider)
	current, ok := m.tokens[key]
	if !ok || !current.UpdatedAt.Equal(prevUpdatedAt) {
		return false, nil
	}

	updatedAt := dbNow()
	if !updatedAt.After(prevUpdatedAt) {
		updatedAt = prevUpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = updatedAt
	m.tokens[key] = *t
	return true, nil
}

func (m *MemoryBackend) GetAPIKey(ctx context.Context, userId, provider string) (*types.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[credentialKey(userId, provider)]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (m *MemoryBackend) SaveAPIKey(ctx context.Context, k *types.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k.CreatedAt.IsZero() {
		k.CreatedAt = dbNow()
	}
	m.apiKeys[credentialKey(k.UserId, k.Provider)] = *k
	return nil
}

func (m *MemoryBackend) SaveSchedule(ctx context.Context, s *types.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.AgentId] = *s
	return nil
}

func (m *MemoryBackend) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]types.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}

	var due []types.Schedule
	for _, s := range m.schedules {
		if s.Active && !s.NextRunAt.After(now) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryBackend) ClaimSchedule(ctx context.Context, agentId string, dueAt, lastRunAt, nextRunAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[agentId]
	if !ok || !s.Active || !s.NextRunAt.Equal(dueAt) {
		return false, nil
	}
	s.LastRunAt = &lastRunAt
	s.NextRunAt = nextRunAt
	m.schedules[agentId] = s
	return true, nil
}
