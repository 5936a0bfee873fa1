// Package ratelimit provides Redis-backed fixed-window rate limiting using
// INCR + EXPIRE. The moderator uses it to bound verification attempts so a
// challenge code cannot be guessed by brute force.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:verify:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// RuleVerify allows 5 verification attempts per 10 minutes per guild member.
var RuleVerify = Rule{Key: "rl:verify:", Limit: 5, Window: 10 * time.Minute}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	log    *slog.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client, log: slog.Default().With("component", "ratelimit")}
}

// Allow increments the counter for identifier under rule and reports whether
// the caller is still within the limit. The expiry is set on first access.
//
// On Redis errors Allow fails open (returns true) and also returns the
// error, so an outage never locks users out of verification.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn("redis INCR failed, failing open", "key", key, "err", err)
		return true, fmt.Errorf("ratelimit: incr: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.log.Warn("redis EXPIRE failed, failing open", "key", key, "err", err)
			// A key without TTL would persist; drop it.
			l.client.Del(ctx, key)
			return true, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}

	return int(count) <= rule.Limit, nil
}

// Remaining returns how many requests identifier has left in the current
// window. It returns the full limit when no window is open, and on Redis
// errors.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		l.log.Warn("redis GET failed, failing open", "key", key, "err", err)
		return rule.Limit, fmt.Errorf("ratelimit: get: %w", err)
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears the window for identifier.
func (l *Limiter) Reset(ctx context.Context, identifier string, rule Rule) error {
	return l.client.Del(ctx, rule.Key+identifier).Err()
}
