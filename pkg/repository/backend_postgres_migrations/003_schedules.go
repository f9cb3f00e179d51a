package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upSchedules, downSchedules)
}

func upSchedules(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schedules (
			agent_id TEXT PRIMARY KEY REFERENCES agents(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			frequency TEXT NOT NULL,
			interval_count INTEGER NOT NULL DEFAULT 1,
			next_run_at TIMESTAMP WITH TIME ZONE NOT NULL,
			last_run_at TIMESTAMP WITH TIME ZONE,
			active BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(next_run_at) WHERE active = true`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downSchedules(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS schedules`)
	return err
}
