package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/common"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/retry"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	// Import migrations to register them with goose
	_ "github.com/Shay-Sh/BizOSV1-sub000/pkg/repository/backend_postgres_migrations"
)

// Startup ping; a server that is still booting gets a few attempts
var connectPolicy = retry.Policy{
	MaxAttempts: 6,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	Retryable:   func(error) bool { return true },
}

// PostgresBackend implements BackendRepository using Postgres. Tokens and API
// keys pass through secrets on the way in and out.
type PostgresBackend struct {
	db      *sql.DB
	secrets *common.SecretBox
}

// NewPostgresBackend opens the pool and waits for the server to accept connections
func NewPostgresBackend(ctx context.Context, cfg types.PostgresConfig, secrets *common.SecretBox) (*PostgresBackend, error) {
	cfg = withPostgresDefaults(cfg)

	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	err = connectPolicy.Do(ctx, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Warn().Err(err).Str("host", cfg.Host).Msg("postgres not reachable yet")
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.Host, err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to postgres")

	return NewPostgresBackendFromDB(db, secrets), nil
}

// NewPostgresBackendFromDB wraps an existing connection pool
func NewPostgresBackendFromDB(db *sql.DB, secrets *common.SecretBox) *PostgresBackend {
	return &PostgresBackend{db: db, secrets: secrets}
}

func withPostgresDefaults(cfg types.PostgresConfig) types.PostgresConfig {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.Database == "" {
		cfg.Database = "mailflow"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	return cfg
}

// postgresDSN renders a URL DSN so credentials with spaces or quotes survive
func postgresDSN(cfg types.PostgresConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}

func (b *PostgresBackend) DB() *sql.DB {
	return b.db
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// RunMigrations applies every registered migration and returns the schema version
func (b *PostgresBackend) RunMigrations(ctx context.Context) (int64, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}

	before, err := goose.GetDBVersionContext(ctx, b.db)
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}

	// goose uses the migrations registered from init()
	if err := goose.UpContext(ctx, b.db, "."); err != nil {
		return before, fmt.Errorf("run migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, b.db)
	if err != nil {
		return before, fmt.Errorf("read migration version: %w", err)
	}

	log.Info().Int64("from", before).Int64("to", version).Msg("migrations complete")
	return version, nil
}
