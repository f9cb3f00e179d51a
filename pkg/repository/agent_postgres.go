package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

func (b *PostgresBackend) GetAgent(ctx context.Context, agentId string) (*types.Agent, error) {
	query := `
		SELECT id, user_id, name, flow, active, created_at, updated_at
		FROM agents
		WHERE id = $1
	`

	var a types.Agent
	var flow []byte
	err := b.db.QueryRowContext(ctx, query, agentId).Scan(
		&a.Id, &a.UserId, &a.Name, &flow, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.ErrAgentNotFound{AgentId: agentId}
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}

	if err := json.Unmarshal(flow, &a.Flow); err != nil {
		return nil, fmt.Errorf("decode flow for agent %s: %w", agentId, err)
	}

	return &a, nil
}

func (b *PostgresBackend) SaveAgent(ctx context.Context, agent *types.Agent) error {
	flow, err := json.Marshal(agent.Flow)
	if err != nil {
		return fmt.Errorf("encode flow: %w", err)
	}

	now := dbNow()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	query := `
		INSERT INTO agents (id, user_id, name, flow, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, flow = EXCLUDED.flow, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`
	_, err = b.db.ExecContext(ctx, query,
		agent.Id, agent.UserId, agent.Name, string(flow), agent.Active, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (b *PostgresBackend) ListAgents(ctx context.Context, userId string) ([]types.Agent, error) {
	query := `
		SELECT id, user_id, name, flow, active, created_at, updated_at
		FROM agents
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := b.db.QueryContext(ctx, query, userId)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []types.Agent
	for rows.Next() {
		var a types.Agent
		var flow []byte
		if err := rows.Scan(&a.Id, &a.UserId, &a.Name, &flow, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if err := json.Unmarshal(flow, &a.Flow); err != nil {
			return nil, fmt.Errorf("decode flow for agent %s: %w", a.Id, err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
