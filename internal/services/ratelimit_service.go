package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Rate-limit scopes. Two scopes combined with AND guard an endpoint:
// both must allow for the request to be admitted.
const (
	ScopeEmail = "email"
	ScopeIP    = "ip"
	ScopeAdmin = "admin"
)

// RateLimitResult is the outcome of a single fixed-window check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitService is a fixed-window throttle on Redis INCR+EXPIRE.
// It is a defense-in-depth control, not a financial one: when Redis is
// unavailable it fails open, and counters may reset on restart.
type RateLimitService struct {
	redis *redis.Client
}

func NewRateLimitService(redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{redis: redisClient}
}

// Check consumes one request from the (scope, identity) bucket.
func (s *RateLimitService) Check(ctx context.Context, scope, identity string, limit int, window time.Duration) RateLimitResult {
	if s.redis == nil {
		return RateLimitResult{Allowed: true, Remaining: limit}
	}

	key := fmt.Sprintf("ratelimit:%s:%s", scope, identity)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[RATELIMIT] Redis error for %s, failing open: %v", key, err)
		return RateLimitResult{Allowed: true, Remaining: limit}
	}
	if count == 1 {
		s.redis.Expire(ctx, key, window)
	}

	if count > int64(limit) {
		retryAfter := window
		if ttl, err := s.redis.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		log.Printf("[RATELIMIT] Limit exceeded for %s (%d/%d)", key, count, limit)
		return RateLimitResult{Allowed: false, RetryAfter: retryAfter}
	}

	return RateLimitResult{Allowed: true, Remaining: limit - int(count)}
}

// CheckBoth admits a request only if both buckets allow it.
func (s *RateLimitService) CheckBoth(ctx context.Context, scopeA, identityA, scopeB, identityB string, limit int, window time.Duration) RateLimitResult {
	first := s.Check(ctx, scopeA, identityA, limit, window)
	second := s.Check(ctx, scopeB, identityB, limit, window)
	if !first.Allowed {
		return first
	}
	if !second.Allowed {
		return second
	}
	if second.Remaining < first.Remaining {
		return second
	}
	return first
}
