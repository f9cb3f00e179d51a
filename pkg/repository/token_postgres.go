package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

func (b *PostgresBackend) GetOAuthToken(ctx context.Context, userId, provider string) (*types.OAuthToken, error) {
	query := `
		SELECT user_id, provider, access_token, refresh_token, token_type, scope, expires_at, updated_at
		FROM oauth_tokens
		WHERE user_id = $1 AND provider = $2
	`

	var t types.OAuthToken
	var access, refresh []byte
	err := b.db.QueryRowContext(ctx, query, userId, provider).Scan(
		&t.UserId, &t.Provider, &access, &refresh, &t.TokenType, &t.Scope, &t.ExpiresAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.ErrTokenNotFound{UserId: userId, Provider: provider}
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth token: %w", err)
	}

	if t.AccessToken, err = b.secrets.Open(access); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if t.RefreshToken, err = b.secrets.Open(refresh); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return &t, nil
}

func (b *PostgresBackend) sealToken(t *types.OAuthToken) ([]byte, []byte, error) {
	access, err := b.secrets.Seal(t.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := b.secrets.Seal(t.RefreshToken)
	if err != nil {
		return nil, nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return access, refresh, nil
}

func (b *PostgresBackend) SaveOAuthToken(ctx context.Context, t *types.OAuthToken) error {
	access, refresh, err := b.sealToken(t)
	if err != nil {
		return err
	}
	t.UpdatedAt = dbNow()

	query := `
		INSERT INTO oauth_tokens (user_id, provider, access_token, refresh_token, token_type, scope, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET access_token = EXCLUDED.access_token, refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type, scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
	`
	_, err = b.db.ExecContext(ctx, query, t.UserId, t.Provider, access, refresh, t.TokenType, t.Scope, t.ExpiresAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save oauth token: %w", err)
	}
	return nil
}

func (b *PostgresBackend) SwapOAuthToken(ctx context.Context, t *types.OAuthToken, prevUpdatedAt time.Time) (bool, error) {
	access, refresh, err := b.sealToken(t)
	if err != nil {
		return false, err
	}
	updatedAt := dbNow()

	query := `
		UPDATE oauth_tokens
		SET access_token = $3, refresh_token = $4, token_type = $5, scope = $6, expires_at = $7, updated_at = $8
		WHERE user_id = $1 AND provider = $2 AND updated_at = $9
	`
	res, err := b.db.ExecContext(ctx, query, t.UserId, t.Provider, access, refresh, t.TokenType, t.Scope, t.ExpiresAt, updatedAt, prevUpdatedAt)
	if err != nil {
		return false, fmt.Errorf("swap oauth token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap oauth token: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	t.UpdatedAt = updatedAt
	return true, nil
}

func (b *PostgresBackend) GetAPIKey(ctx context.Context, userId, provider string) (*types.APIKey, error) {
	query := `SELECT user_id, provider, key, created_at FROM api_keys WHERE user_id = $1 AND provider = $2`

	var k types.APIKey
	var sealed []byte
	err := b.db.QueryRowContext(ctx, query, userId, provider).Scan(&k.UserId, &k.Provider, &sealed, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}

	if k.Key, err = b.secrets.Open(sealed); err != nil {
		return nil, fmt.Errorf("open api key: %w", err)
	}
	return &k, nil
}

func (b *PostgresBackend) SaveAPIKey(ctx context.Context, k *types.APIKey) error {
	sealed, err := b.secrets.Seal(k.Key)
	if err != nil {
		return fmt.Errorf("seal api key: %w", err)
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = dbNow()
	}

	query := `
		INSERT INTO api_keys (user_id, provider, key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, provider) DO UPDATE SET key = EXCLUDED.key
	`
	if _, err := b.db.ExecContext(ctx, query, k.UserId, k.Provider, sealed, k.CreatedAt); err != nil {
		return fmt.Errorf("save api key: %w", err)
	}
	return nil
}
