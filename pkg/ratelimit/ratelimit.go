package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound calls.
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	Limit() rate.Limit
	Burst() int
}

// TokenBucketLimiter implements token bucket algorithm
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewTokenBucketLimiter returns a limiter allowing rps requests per second with
// the given burst. A non-positive rps disables limiting.
func NewTokenBucketLimiter(rps float64, burst int) *TokenBucketLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func (l *TokenBucketLimiter) Allow() bool {
	return l.limiter.Allow()
}

func (l *TokenBucketLimiter) Limit() rate.Limit {
	return l.limiter.Limit()
}

func (l *TokenBucketLimiter) Burst() int {
	return l.limiter.Burst()
}
