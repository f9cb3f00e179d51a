package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

func (b *PostgresBackend) CreateExecutionLog(ctx context.Context, l *types.ExecutionLog) error {
	query := `
		INSERT INTO execution_logs (id, agent_id, user_id, status, triggered_by, start_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := b.db.ExecContext(ctx, query, l.Id, l.AgentId, l.UserId, l.Status, l.TriggeredBy, l.StartTime)
	if err != nil {
		return fmt.Errorf("create execution log: %w", err)
	}
	return nil
}

func (b *PostgresBackend) FinishExecutionLog(ctx context.Context, logId string, status types.ExecutionStatus, errorMessage string, details []byte, endTime time.Time) error {
	query := `
		UPDATE execution_logs
		SET status = $2, end_time = $3, error_message = $4, details = $5
		WHERE id = $1
	`

	res, err := b.db.ExecContext(ctx, query, logId, status, endTime, nullString(errorMessage), nullString(string(details)))
	if err != nil {
		return fmt.Errorf("finish execution log: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish execution log: %w", err)
	}
	if n == 0 {
		return &types.ErrExecutionLogNotFound{LogId: logId}
	}
	return nil
}

const executionLogColumns = `id, agent_id, user_id, status, triggered_by, start_time, end_time, error_message, details`

func scanExecutionLog(row interface{ Scan(...any) error }) (*types.ExecutionLog, error) {
	var l types.ExecutionLog
	var endTime sql.NullTime
	var errMsg sql.NullString
	var details []byte

	if err := row.Scan(&l.Id, &l.AgentId, &l.UserId, &l.Status, &l.TriggeredBy, &l.StartTime, &endTime, &errMsg, &details); err != nil {
		return nil, err
	}
	if endTime.Valid {
		l.EndTime = &endTime.Time
	}
	l.ErrorMessage = errMsg.String
	l.Details = details
	return &l, nil
}

func (b *PostgresBackend) GetExecutionLog(ctx context.Context, logId string) (*types.ExecutionLog, error) {
	query := `SELECT ` + executionLogColumns + ` FROM execution_logs WHERE id = $1`

	l, err := scanExecutionLog(b.db.QueryRowContext(ctx, query, logId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.ErrExecutionLogNotFound{LogId: logId}
	}
	if err != nil {
		return nil, fmt.Errorf("get execution log: %w", err)
	}
	return l, nil
}

func (b *PostgresBackend) ListExecutionLogs(ctx context.Context, agentId, userId string, limit int) ([]types.ExecutionLog, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + executionLogColumns + `
		FROM execution_logs
		WHERE agent_id = $1 AND user_id = $2
		ORDER BY start_time DESC
		LIMIT $3`

	rows, err := b.db.QueryContext(ctx, query, agentId, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	var logs []types.ExecutionLog
	for rows.Next() {
		l, err := scanExecutionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
