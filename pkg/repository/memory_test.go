package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySwapOAuthToken(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()

	tok := &types.OAuthToken{UserId: "u1", Provider: types.ProviderGoogle, AccessToken: "a1", RefreshToken: "r1"}
	require.NoError(t, m.SaveOAuthToken(ctx, tok))
	prev := tok.UpdatedAt

	first := &types.OAuthToken{UserId: "u1", Provider: types.ProviderGoogle, AccessToken: "a2", RefreshToken: "r1"}
	ok, err := m.SwapOAuthToken(ctx, first, prev)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second writer holding the old version loses
	second := &types.OAuthToken{UserId: "u1", Provider: types.ProviderGoogle, AccessToken: "a3", RefreshToken: "r1"}
	ok, err = m.SwapOAuthToken(ctx, second, prev)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := m.GetOAuthToken(ctx, "u1", types.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.AccessToken)
}

func TestMemoryTokenNotFound(t *testing.T) {
	m := NewMemoryBackend()
	_, err := m.GetOAuthToken(context.Background(), "nobody", types.ProviderGoogle)
	assert.True(t, (&types.ErrTokenNotFound{}).From(err))
}

func TestMemoryExecutionLogs(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, m.CreateExecutionLog(ctx, &types.ExecutionLog{
			Id: id, AgentId: "a1", UserId: "u1", Status: types.ExecutionRunning,
			StartTime: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, m.FinishExecutionLog(ctx, "l3", types.ExecutionSuccess, "", []byte("{}"), base.Add(time.Minute)))

	logs, err := m.ListExecutionLogs(ctx, "a1", "u1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "l3", logs[0].Id)
	assert.Equal(t, types.ExecutionSuccess, logs[0].Status)
	assert.NotNil(t, logs[0].EndTime)

	err = m.FinishExecutionLog(ctx, "missing", types.ExecutionFailed, "", nil, base)
	assert.Error(t, err)
}

func TestMemoryDueSchedules(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.SaveSchedule(ctx, &types.Schedule{AgentId: "due", Active: true, NextRunAt: now.Add(-time.Minute)}))
	require.NoError(t, m.SaveSchedule(ctx, &types.Schedule{AgentId: "later", Active: true, NextRunAt: now.Add(time.Hour)}))
	require.NoError(t, m.SaveSchedule(ctx, &types.Schedule{AgentId: "paused", Active: false, NextRunAt: now.Add(-time.Hour)}))

	due, err := m.ListDueSchedules(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].AgentId)

	claimed, err := m.ClaimSchedule(ctx, "due", due[0].NextRunAt, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed)

	// a second claim on the same due time loses
	claimed, err = m.ClaimSchedule(ctx, "due", due[0].NextRunAt, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed)

	due, err = m.ListDueSchedules(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
