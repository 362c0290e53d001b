package repository

import (
	"context"
	"sync"
	"time"

	"waitlist/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverRateLimiter uses the primary limiter and falls back to the secondary
// while the primary is failing, retrying the primary once per recheck interval.
type FailoverRateLimiter struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	logger   *zerolog.Logger

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	recheck   time.Duration
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		recheck:  time.Minute,
	}
}

func (r *FailoverRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown()
		r.logger.Error().Err(err).Msg("primary rate limiter failed, falling back to memory")
	}

	return r.fallback.Allow(ctx, key, limit, window)
}

func (r *FailoverRateLimiter) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.isDown || time.Since(r.lastCheck) > r.recheck
}

func (r *FailoverRateLimiter) markDown() {
	r.mu.Lock()
	r.isDown = true
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverRateLimiter) markUp() {
	r.mu.Lock()
	r.isDown = false
	r.mu.Unlock()
}

func (r *FailoverRateLimiter) down() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDown
}
