package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upAgents, downAgents)
}

func upAgents(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			flow JSONB NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id)`,

		`CREATE TABLE IF NOT EXISTS execution_logs (
			id UUID PRIMARY KEY,
			agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			triggered_by TEXT NOT NULL,
			start_time TIMESTAMP WITH TIME ZONE NOT NULL,
			end_time TIMESTAMP WITH TIME ZONE,
			error_message TEXT,
			details JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_logs_agent ON execution_logs(agent_id, start_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_logs_running ON execution_logs(status) WHERE status = 'running'`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downAgents(tx *sql.Tx) error {
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS execution_logs`,
		`DROP TABLE IF EXISTS agents`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
