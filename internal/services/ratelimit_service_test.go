package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitCheck(t *testing.T) {
	ctx := context.Background()
	window := 15 * time.Minute

	t.Run("first request starts the window", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		service := NewRateLimitService(client)

		mock.ExpectIncr("ratelimit:email:user@example.com").SetVal(1)
		mock.ExpectExpire("ratelimit:email:user@example.com", window).SetVal(true)

		result := service.Check(ctx, ScopeEmail, "user@example.com", 5, window)
		assert.True(t, result.Allowed)
		assert.Equal(t, 4, result.Remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("request over the limit is denied with a retry hint", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		service := NewRateLimitService(client)

		mock.ExpectIncr("ratelimit:email:user@example.com").SetVal(6)
		mock.ExpectTTL("ratelimit:email:user@example.com").SetVal(7 * time.Minute)

		result := service.Check(ctx, ScopeEmail, "user@example.com", 5, window)
		assert.False(t, result.Allowed)
		assert.Equal(t, 7*time.Minute, result.RetryAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("last request inside the limit is allowed", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		service := NewRateLimitService(client)

		mock.ExpectIncr("ratelimit:ip:10.0.0.1").SetVal(5)

		result := service.Check(ctx, ScopeIP, "10.0.0.1", 5, window)
		assert.True(t, result.Allowed)
		assert.Equal(t, 0, result.Remaining)
	})

	t.Run("fails open when redis errors", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		service := NewRateLimitService(client)

		mock.ExpectIncr("ratelimit:ip:10.0.0.1").SetErr(errors.New("connection refused"))

		result := service.Check(ctx, ScopeIP, "10.0.0.1", 5, window)
		assert.True(t, result.Allowed)
	})

	t.Run("fails open without a redis client", func(t *testing.T) {
		service := NewRateLimitService(nil)
		result := service.Check(ctx, ScopeIP, "10.0.0.1", 5, window)
		assert.True(t, result.Allowed)
	})
}

func TestRateLimitCheckBoth(t *testing.T) {
	ctx := context.Background()
	window := 15 * time.Minute

	t.Run("denied when the first scope is exhausted", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		service := NewRateLimitService(client)

		mock.ExpectIncr("ratelimit:email:user@example.com").SetVal(9)
		mock.ExpectTTL("ratelimit:email:user@example.com").SetVal(3 * time.Minute)
		mock.ExpectIncr("ratelimit:ip:10.0.0.1").SetVal(2)

		result := service.CheckBoth(ctx, ScopeEmail, "user@example.com", ScopeIP, "10.0.0.1", 5, window)
		assert.False(t, result.Allowed)
		assert.Equal(t, 3*time.Minute, result.RetryAfter)
	})

	t.Run("denied when the second scope is exhausted", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		service := NewRateLimitService(client)

		mock.ExpectIncr("ratelimit:email:user@example.com").SetVal(2)
		mock.ExpectIncr("ratelimit:ip:10.0.0.1").SetVal(11)
		mock.ExpectTTL("ratelimit:ip:10.0.0.1").SetVal(time.Minute)

		result := service.CheckBoth(ctx, ScopeEmail, "user@example.com", ScopeIP, "10.0.0.1", 5, window)
		assert.False(t, result.Allowed)
		assert.Equal(t, time.Minute, result.RetryAfter)
	})

	t.Run("both scopes are always consumed", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		service := NewRateLimitService(client)

		mock.ExpectIncr("ratelimit:email:user@example.com").SetVal(2)
		mock.ExpectIncr("ratelimit:ip:10.0.0.1").SetVal(4)

		result := service.CheckBoth(ctx, ScopeEmail, "user@example.com", ScopeIP, "10.0.0.1", 5, window)
		assert.True(t, result.Allowed)
		assert.Equal(t, 1, result.Remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
