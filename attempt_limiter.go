package zerofriction

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "zfl:fail"

var errAttemptLimiterUnavailable = errors.New("attempt limiter storage unavailable")

// attemptLimiter tracks recent failed verifications per identity. It is
// auxiliary, short-TTL state consulted only for the verifier's backoff
// delay — losing it loses backoff pressure, never correctness.
type attemptLimiter struct {
	redis  *redis.Client
	config VerifyConfig
}

func newAttemptLimiter(redisClient *redis.Client, cfg VerifyConfig) *attemptLimiter {
	return &attemptLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *attemptLimiter) key(identityHash string) string {
	return attemptKeyPrefix + ":" + identityHash
}

// Failures returns the failed-attempt count inside the attempt TTL. A
// storage failure reads as zero: backoff is best-effort and must not block
// verification when Redis blips, since the store consume still decides
// correctness.
func (l *attemptLimiter) Failures(ctx context.Context, identityHash string) int {
	count, err := l.redis.Get(ctx, l.key(identityHash)).Int64()
	if err != nil {
		return 0
	}
	return int(count)
}

// RecordFailure bumps the counter and refreshes its TTL so the backoff
// window tracks the most recent failure.
func (l *attemptLimiter) RecordFailure(ctx context.Context, identityHash string) error {
	key := l.key(identityHash)

	if err := l.redis.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAttemptLimiterUnavailable, err)
	}
	if err := l.redis.Expire(ctx, key, l.config.AttemptTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAttemptLimiterUnavailable, err)
	}
	return nil
}

// Clear drops the counter after a successful verification.
func (l *attemptLimiter) Clear(ctx context.Context, identityHash string) error {
	if err := l.redis.Del(ctx, l.key(identityHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAttemptLimiterUnavailable, err)
	}
	return nil
}
