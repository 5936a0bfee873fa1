// Package verify manages CAPTCHA verification challenges backed by Redis.
// A challenge is a short code delivered privately to the user, stored as a
// key-value pair with TTL-based expiry:
//
//	Key:   verify:<guild_id>:<user_id>
//	Value: <code>
//	TTL:   challenge lifetime
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// ChallengePrefix is the Redis key prefix for challenge records.
	ChallengePrefix = "verify:"

	// DefaultTTL is how long a challenge stays redeemable.
	DefaultTTL = 10 * time.Minute

	// CodeLength is the number of characters in a challenge code.
	CodeLength = 8
)

var (
	// ErrNoChallenge means the user has no pending challenge in the guild.
	ErrNoChallenge = errors.New("verify: no pending challenge")

	// ErrMismatch means the submitted code is wrong.
	ErrMismatch = errors.New("verify: code does not match")
)

// Challenge is a pending verification.
type Challenge struct {
	Code string
	// New is false when an unexpired challenge already existed and was
	// returned as is.
	New bool
}

// Store manages verification challenges in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a challenge store. A non-positive ttl uses DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func challengeKey(guildID, userID string) string {
	return ChallengePrefix + guildID + ":" + userID
}

// NewCode returns a random upper-case hex code of CodeLength characters.
func NewCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:CodeLength])
}

// Issue creates a challenge for the user unless one is already pending, in
// which case the pending challenge is returned with New false.
func (s *Store) Issue(ctx context.Context, guildID, userID string) (Challenge, error) {
	key := challengeKey(guildID, userID)
	code := NewCode()

	created, err := s.client.SetNX(ctx, key, code, s.ttl).Result()
	if err != nil {
		return Challenge{}, fmt.Errorf("verify: issue: %w", err)
	}
	if created {
		return Challenge{Code: code, New: true}, nil
	}

	existing, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET.
		if err := s.client.Set(ctx, key, code, s.ttl).Err(); err != nil {
			return Challenge{}, fmt.Errorf("verify: issue: %w", err)
		}
		return Challenge{Code: code, New: true}, nil
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("verify: issue: %w", err)
	}
	return Challenge{Code: existing}, nil
}

// Redeem checks code against the pending challenge and consumes it on a
// match. Codes compare case-insensitively.
func (s *Store) Redeem(ctx context.Context, guildID, userID, code string) error {
	key := challengeKey(guildID, userID)

	want, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNoChallenge
	}
	if err != nil {
		return fmt.Errorf("verify: redeem: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(code), want) {
		return ErrMismatch
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("verify: redeem delete: %w", err)
	}
	return nil
}

// Cancel removes a pending challenge. Cancelling when none is pending is
// not an error.
func (s *Store) Cancel(ctx context.Context, guildID, userID string) error {
	if err := s.client.Del(ctx, challengeKey(guildID, userID)).Err(); err != nil {
		return fmt.Errorf("verify: cancel: %w", err)
	}
	return nil
}
