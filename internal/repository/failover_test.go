package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverRateLimiter(t *testing.T) {
	primary := new(mockLimiter)
	fallback := new(mockLimiter)
	logger := zerolog.New(io.Discard)
	limiter := NewFailoverRateLimiter(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Allow", ctx, "a", 3, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "a", 3, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallback", func(t *testing.T) {
		primary.On("Allow", ctx, "b", 3, time.Minute).Return(false, errors.New("redis down")).Once()
		fallback.On("Allow", ctx, "b", 3, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "b", 3, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, limiter.down())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackUntilRecheck", func(t *testing.T) {
		fallback.On("Allow", ctx, "c", 3, time.Minute).Return(false, nil).Once()

		allowed, err := limiter.Allow(ctx, "c", 3, time.Minute)
		assert.NoError(t, err)
		assert.False(t, allowed)
		primary.AssertNotCalled(t, "Allow", ctx, "c", 3, time.Minute)
	})

	t.Run("RecoversAfterRecheck", func(t *testing.T) {
		limiter.recheck = 0
		primary.On("Allow", ctx, "d", 3, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "d", 3, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, limiter.down())
	})
}
