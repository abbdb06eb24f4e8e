package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var counterScript string

// Counter keys share one namespace so an operator can inspect or clear
// them with a single SCAN pattern.
const keyspace = "throttle"

// Logger is the subset of the service logger the limiter reports
// through.
type Logger interface {
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RateLimitResult is the outcome of one admission check.
type RateLimitResult struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// RateLimiter admits or rejects requests against fixed-window counters
// kept in Redis. The increment, expiry and comparison run inside one
// Lua script, so concurrent callers cannot both slip under the limit.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	log    Logger
}

// NewRateLimiter creates a limiter backed by the given Redis client.
func NewRateLimiter(client *redis.Client, log Logger) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		script: redis.NewScript(counterScript),
		log:    log,
	}
}

// CheckGlobalLimit admits against the single service-wide counter.
func (r *RateLimiter) CheckGlobalLimit(ctx context.Context, limit int64) (*RateLimitResult, error) {
	return r.admit(ctx, keyspace+":global", limit, DefaultGlobalConfig.WindowSeconds)
}

// CheckUserLimit admits against the caller's own counter.
func (r *RateLimiter) CheckUserLimit(ctx context.Context, userID string, limit int64, windowSec int) (*RateLimitResult, error) {
	return r.admit(ctx, fmt.Sprintf("%s:user:%s", keyspace, userID), limit, windowSec)
}

// CheckTieredLimit admits a run against the caller's counter for the
// given cost tier. Each tier has its own bucket, so a user burning
// through heavy model-calling workflows can still start cheap ones.
func (r *RateLimiter) CheckTieredLimit(ctx context.Context, userID string, tier WorkflowTier) (*RateLimitResult, error) {
	key := fmt.Sprintf("%s:user:%s:tier:%s", keyspace, userID, tier)
	return r.admit(ctx, key, GetLimitForTier(tier), GetWindowForTier(tier))
}

func (r *RateLimiter) admit(ctx context.Context, key string, limit int64, windowSec int) (*RateLimitResult, error) {
	vals, err := r.script.Run(ctx, r.redis, []string{key}, limit, windowSec).Int64Slice()
	if err != nil {
		r.log.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(vals) != 4 {
		return nil, fmt.Errorf("rate limit script returned %d values, want 4", len(vals))
	}

	result := &RateLimitResult{
		Allowed:           vals[0] == 1,
		CurrentCount:      vals[1],
		Limit:             vals[2],
		RetryAfterSeconds: vals[3],
	}

	if !result.Allowed {
		r.log.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit,
			"retry_after", result.RetryAfterSeconds)
	} else {
		r.log.Debug("rate limit check passed", "key", key, "current", result.CurrentCount)
	}

	return result, nil
}

// GetCurrentCount reads a counter without incrementing it. A missing
// key reads as zero.
func (r *RateLimiter) GetCurrentCount(ctx context.Context, key string) (int64, error) {
	count, err := r.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// ResetLimit clears a counter so the next check starts a fresh window.
func (r *RateLimiter) ResetLimit(ctx context.Context, key string) error {
	return r.redis.Del(ctx, key).Err()
}
