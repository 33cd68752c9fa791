package zerofriction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const auditKeyPrefix = "zfl:audit"

var errAuditStoreUnavailable = errors.New("audit storage unavailable")

// RedisAuditSink persists audit events in Redis sorted sets scored by unix
// time: one global set plus one per identity, so admin queries by identity
// stay cheap. Events are append-only; the only mutation is the retention
// purge.
type RedisAuditSink struct {
	redis *redis.Client
}

func NewRedisAuditSink(redisClient *redis.Client) *RedisAuditSink {
	return &RedisAuditSink{redis: redisClient}
}

func (s *RedisAuditSink) globalKey() string {
	return auditKeyPrefix + ":all"
}

func (s *RedisAuditSink) identityKey(identity string) string {
	return auditKeyPrefix + ":id:" + hashIdentity(identity)
}

// Emit implements [AuditSink]. Failures are swallowed: audit persistence is
// fire-and-forget and must never fail an authentication operation.
func (s *RedisAuditSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.redis == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	member := redis.Z{
		Score:  float64(event.Timestamp.UnixNano()),
		Member: string(data),
	}

	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, s.globalKey(), member)
	if event.Identity != "" {
		pipe.ZAdd(ctx, s.identityKey(event.Identity), member)
	}
	_, _ = pipe.Exec(ctx)
}

// Recent returns up to limit events, newest first. With a non-empty
// identity only that identity's events are returned.
func (s *RedisAuditSink) Recent(ctx context.Context, identity string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	key := s.globalKey()
	if identity != "" {
		key = s.identityKey(identity)
	}

	members, err := s.redis.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", errAuditStoreUnavailable, err)
	}

	events := make([]AuditEvent, 0, len(members))
	for _, member := range members {
		var event AuditEvent
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// PurgeBefore removes events older than the cutoff from every audit set.
func (s *RedisAuditSink) PurgeBefore(ctx context.Context, cutoff time.Time) error {
	max := fmt.Sprintf("(%d", cutoff.UnixNano())

	iter := s.redis.Scan(ctx, 0, auditKeyPrefix+":*", 128).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.ZRemRangeByScore(ctx, iter.Val(), "-inf", max).Err(); err != nil {
			return fmt.Errorf("%w: %v", errAuditStoreUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", errAuditStoreUnavailable, err)
	}
	return nil
}
