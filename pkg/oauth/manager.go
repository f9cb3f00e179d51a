package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/common"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/metrics"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshSkew  = 5 * time.Minute
	defaultCacheSize    = 1024
	defaultCacheTTL     = 10 * time.Minute
	defaultLockTTL      = 15 * time.Second
	refreshTimeout      = 30 * time.Second
	lockRetryInterval   = 100 * time.Millisecond
	defaultTokenExpires = time.Hour
)

// TokenManager hands out valid access tokens and refreshes them on expiry.
// Concurrent callers for the same user share one refresh inside the process;
// across processes the refresh is serialized by a Redis lock when available
// and always guarded by a compare-and-swap on the stored row.
type TokenManager struct {
	store     repository.OAuthTokenRepository
	refresher Refresher
	lock      *common.RedisLock
	cache     *expirable.LRU[string, types.OAuthToken]
	group     singleflight.Group
	skew      time.Duration
	lockTTL   time.Duration
	now       func() time.Time
}

// NewTokenManager creates a token manager. rdb may be nil in local mode.
func NewTokenManager(store repository.OAuthTokenRepository, refresher Refresher, cfg types.OAuthConfig, rdb *common.RedisClient) *TokenManager {
	skew := cfg.RefreshSkew
	if skew <= 0 {
		skew = defaultRefreshSkew
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	m := &TokenManager{
		store:     store,
		refresher: refresher,
		cache:     expirable.NewLRU[string, types.OAuthToken](size, nil, ttl),
		skew:      skew,
		lockTTL:   lockTTL,
		now:       time.Now,
	}
	if rdb != nil {
		m.lock = common.NewRedisLock(rdb)
	}
	return m
}

func (m *TokenManager) provider() string {
	return m.refresher.Name()
}

// GetValidToken returns a token that is not within the refresh skew of expiry
func (m *TokenManager) GetValidToken(ctx context.Context, userId string) (*types.OAuthToken, error) {
	if tok, ok := m.cache.Get(userId); ok && !tok.NeedsRefresh(m.now(), m.skew) {
		return &tok, nil
	}

	tok, err := m.load(ctx, userId)
	if err != nil {
		return nil, err
	}

	if !tok.NeedsRefresh(m.now(), m.skew) {
		m.cache.Add(userId, *tok)
		return tok, nil
	}

	return m.refresh(ctx, userId, "")
}

// ForceRefresh replaces an access token the provider rejected. If the stored
// token already differs from staleAccessToken another caller refreshed it and
// that token is returned.
func (m *TokenManager) ForceRefresh(ctx context.Context, userId, staleAccessToken string) (*types.OAuthToken, error) {
	m.cache.Remove(userId)
	return m.refresh(ctx, userId, staleAccessToken)
}

func (m *TokenManager) load(ctx context.Context, userId string) (*types.OAuthToken, error) {
	tok, err := m.store.GetOAuthToken(ctx, userId, m.provider())
	if err != nil {
		if (&types.ErrTokenNotFound{}).From(err) {
			return nil, &types.AuthError{UserId: userId, Reason: "mailbox not connected", Err: err}
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	return tok, nil
}

func (m *TokenManager) refresh(ctx context.Context, userId, stale string) (*types.OAuthToken, error) {
	ch := m.group.DoChan(userId, func() (any, error) {
		// The shared refresh must not die with whichever caller started it
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refreshExclusive(rctx, userId, stale)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		tok := res.Val.(types.OAuthToken)
		return &tok, nil
	}
}

func (m *TokenManager) refreshExclusive(ctx context.Context, userId, stale string) (types.OAuthToken, error) {
	if m.lock != nil {
		key := common.Keys.TokenRefreshLock(m.provider(), userId)
		err := m.lock.Acquire(ctx, key, common.RedisLockOptions{
			TtlS:          int(m.lockTTL.Seconds()),
			Retries:       int(m.lockTTL / lockRetryInterval),
			RetryInterval: lockRetryInterval,
		})
		if err != nil {
			return types.OAuthToken{}, &types.ProviderError{
				Provider: m.provider(), Op: "refresh", Kind: types.KindTransient,
				Message: "refresh lock unavailable", Err: err,
			}
		}
		defer func() {
			if err := m.lock.Release(key); err != nil {
				log.Warn().Err(err).Str("user_id", userId).Msg("failed to release token refresh lock")
			}
		}()
	}

	// Re-read under the lock: another caller may have refreshed already
	current, err := m.load(ctx, userId)
	if err != nil {
		return types.OAuthToken{}, err
	}

	fresh := !current.NeedsRefresh(m.now(), m.skew)
	if fresh && (stale == "" || current.AccessToken != stale) {
		m.cache.Add(userId, *current)
		return *current, nil
	}

	if current.RefreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues("no_refresh_token").Inc()
		return types.OAuthToken{}, &types.AuthError{UserId: userId, Reason: "no refresh token"}
	}

	grant, err := m.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		var authErr *types.AuthError
		if errors.As(err, &authErr) {
			authErr.UserId = userId
			metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
			return types.OAuthToken{}, authErr
		}
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return types.OAuthToken{}, err
	}

	updated := *current
	updated.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		updated.RefreshToken = grant.RefreshToken
	}
	if grant.TokenType != "" {
		updated.TokenType = grant.TokenType
	}
	updated.ExpiresAt = grant.Expiry
	if updated.ExpiresAt.IsZero() {
		updated.ExpiresAt = m.now().Add(defaultTokenExpires)
	}

	swapped, err := m.store.SwapOAuthToken(ctx, &updated, current.UpdatedAt)
	if err != nil {
		return types.OAuthToken{}, fmt.Errorf("store refreshed token: %w", err)
	}

	if !swapped {
		// Lost the race; the winner's token is just as good
		winner, err := m.load(ctx, userId)
		if err != nil {
			return types.OAuthToken{}, err
		}
		metrics.TokenRefreshes.WithLabelValues("lost_race").Inc()
		m.cache.Add(userId, *winner)
		return *winner, nil
	}

	log.Info().
		Str("user_id", userId).
		Time("expires_at", updated.ExpiresAt).
		Msg("refreshed mailbox token")

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	m.cache.Add(userId, updated)
	return updated, nil
}
