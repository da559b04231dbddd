package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestTokenBucketLimiter_Burst(t *testing.T) {
	limiter := NewTokenBucketLimiter(0.001, 2)

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
	assert.Equal(t, 2, limiter.Burst())
}

func TestTokenBucketLimiter_Unlimited(t *testing.T) {
	limiter := NewTokenBucketLimiter(0, 0)

	assert.Equal(t, rate.Inf, limiter.Limit())
	assert.Equal(t, 1, limiter.Burst())
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow())
	}
}

func TestTokenBucketLimiter_WaitHonoursContext(t *testing.T) {
	limiter := NewTokenBucketLimiter(0.001, 1)
	assert.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx))
}
