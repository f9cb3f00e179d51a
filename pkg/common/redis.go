package common

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	redis.UniversalClient
}

// WithClientName sets the name reported by CLIENT LIST
func WithClientName(name string) func(*redis.UniversalOptions) {
	return func(opts *redis.UniversalOptions) {
		opts.ClientName = name
	}
}

func NewRedisClient(config types.RedisConfig, options ...func(*redis.UniversalOptions)) (*RedisClient, error) {
	if !config.IsConfigured() {
		return nil, errors.New("redis addrs not configured")
	}

	opts := &redis.UniversalOptions{
		Addrs:        config.Addrs,
		Username:     config.Username,
		Password:     config.Password,
		ClientName:   config.ClientName,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		MaxRetries:   config.MaxRetries,
	}
	if config.EnableTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify}
	}
	for _, opt := range options {
		opt(opts)
	}

	var client redis.UniversalClient
	if config.Mode == types.RedisModeCluster {
		client = redis.NewClusterClient(opts.Cluster())
	} else {
		client = redis.NewClient(opts.Simple())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisClient{UniversalClient: client}, nil
}

// ErrLockNotAcquired is returned when a lock is held elsewhere after all retries
var ErrLockNotAcquired = errors.New("lock not acquired")

type RedisLockOptions struct {
	TtlS    int
	Retries int
	// RetryInterval defaults to 100ms
	RetryInterval time.Duration
}

// RedisLock hands out named distributed locks backed by redislock
type RedisLock struct {
	locker *redislock.Client
	mu     sync.Mutex
	locks  map[string]*redislock.Lock
}

func NewRedisLock(client *RedisClient) *RedisLock {
	return &RedisLock{
		locker: redislock.New(client.UniversalClient),
		locks:  make(map[string]*redislock.Lock),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, opts RedisLockOptions) error {
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ttl := time.Duration(opts.TtlS) * time.Second

	lock, err := l.locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(interval), opts.Retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockNotAcquired
	}
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.locks[key] = lock
	l.mu.Unlock()
	return nil
}

func (l *RedisLock) Release(key string) error {
	l.mu.Lock()
	lock, ok := l.locks[key]
	delete(l.locks, key)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	err := lock.Release(context.Background())
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
