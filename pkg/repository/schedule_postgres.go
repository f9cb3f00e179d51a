package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

func (b *PostgresBackend) SaveSchedule(ctx context.Context, s *types.Schedule) error {
	query := `
		INSERT INTO schedules (agent_id, user_id, frequency, interval_count, next_run_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id) DO UPDATE
		SET frequency = EXCLUDED.frequency, interval_count = EXCLUDED.interval_count,
			next_run_at = EXCLUDED.next_run_at, active = EXCLUDED.active
	`
	_, err := b.db.ExecContext(ctx, query, s.AgentId, s.UserId, s.Frequency, s.Interval, s.NextRunAt, s.Active)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

func (b *PostgresBackend) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]types.Schedule, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT agent_id, user_id, frequency, interval_count, next_run_at, last_run_at, active
		FROM schedules
		WHERE active = true AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
	`
	rows, err := b.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []types.Schedule
	for rows.Next() {
		var s types.Schedule
		var lastRun sql.NullTime
		if err := rows.Scan(&s.AgentId, &s.UserId, &s.Frequency, &s.Interval, &s.NextRunAt, &lastRun, &s.Active); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		if lastRun.Valid {
			s.LastRunAt = &lastRun.Time
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (b *PostgresBackend) ClaimSchedule(ctx context.Context, agentId string, dueAt, lastRunAt, nextRunAt time.Time) (bool, error) {
	query := `
		UPDATE schedules SET last_run_at = $3, next_run_at = $4
		WHERE agent_id = $1 AND next_run_at = $2 AND active = true
	`
	res, err := b.db.ExecContext(ctx, query, agentId, dueAt, lastRunAt, nextRunAt)
	if err != nil {
		return false, fmt.Errorf("claim schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim schedule: %w", err)
	}
	return n == 1, nil
}
