package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upCredentials, downCredentials)
}

// Token and key columns hold secretbox-sealed bytes
func upCredentials(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			access_token BYTEA NOT NULL,
			refresh_token BYTEA NOT NULL,
			token_type TEXT NOT NULL DEFAULT 'Bearer',
			scope TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, provider)
		)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			key BYTEA NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, provider)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downCredentials(tx *sql.Tx) error {
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS api_keys`,
		`DROP TABLE IF EXISTS oauth_tokens`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
