package mailbox

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per user so a busy mailbox cannot
// starve the provider quota of others.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*userLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

type userLimiter struct {
	*rate.Limiter
	lastUsed time.Time
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		limiters:  make(map[string]*userLimiter),
		rps:       rate.Limit(requestsPerSecond),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Wait blocks until userId may issue another request or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, userId string) error {
	return r.limiter(userId).Wait(ctx)
}

func (r *RateLimiter) limiter(userId string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastSweep) > limiterIdleTTL {
		for key, l := range r.limiters {
			if now.Sub(l.lastUsed) > limiterIdleTTL {
				delete(r.limiters, key)
			}
		}
		r.lastSweep = now
	}

	l, ok := r.limiters[userId]
	if !ok {
		l = &userLimiter{Limiter: rate.NewLimiter(r.rps, r.burst)}
		r.limiters[userId] = l
	}
	l.lastUsed = now
	return l.Limiter
}
