package zerofriction

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateKeyPrefix       = "zfl:rl"
	rateRecordVersionV1 = 1
	rateMaxRetries      = 4
)

var errRateLimiterUnavailable = errors.New("rate limiter storage unavailable")

// Scope tags a rate-limit identifier namespace. Keeping the namespace in
// the type instead of a string prefix prevents cross-namespace collisions
// at the type level.
type Scope uint8

const (
	// ScopeIdentity namespaces identifiers derived from an identity.
	ScopeIdentity Scope = iota
	// ScopeSource namespaces identifiers derived from a caller source
	// address.
	ScopeSource
	// ScopeCustom namespaces caller-defined identifiers. Custom
	// identifiers are checked against the identity thresholds.
	ScopeCustom
)

func (s Scope) String() string {
	switch s {
	case ScopeIdentity:
		return "identity"
	case ScopeSource:
		return "source"
	case ScopeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Identifier is a namespaced, already-hashed rate-limit subject. Construct
// one with [IdentityIdentifier], [SourceIdentifier], or [CustomIdentifier];
// the raw value never reaches the store.
type Identifier struct {
	Scope Scope
	Hash  string
}

// IdentityIdentifier builds the admission identifier for an identity. The
// identity is normalized before hashing.
func IdentityIdentifier(identity string) Identifier {
	return Identifier{Scope: ScopeIdentity, Hash: hashIdentity(identity)}
}

// SourceIdentifier builds the admission identifier for a caller source
// address.
func SourceIdentifier(source string) Identifier {
	return Identifier{Scope: ScopeSource, Hash: hashSource(source)}
}

// CustomIdentifier builds an admission identifier in the caller-defined
// namespace.
func CustomIdentifier(value string) Identifier {
	return Identifier{Scope: ScopeCustom, Hash: hashSource(value)}
}

func (id Identifier) key() string {
	return rateKeyPrefix + ":" + id.Scope.String() + ":" + id.Hash
}

// Admission decision reasons.
const (
	// ReasonLockedOut denies while a lockout covers the identifier.
	ReasonLockedOut = "locked_out"
	// ReasonHourlyLimit denies because the hourly threshold was exceeded;
	// a lockout has been applied.
	ReasonHourlyLimit = "hourly_limit"
	// ReasonBurstLimit denies because the burst threshold was exceeded.
	// No lockout is applied.
	ReasonBurstLimit = "rate_limit"
	// ReasonSourceLimit denies because the per-source hourly threshold was
	// exceeded; a lockout has been applied.
	ReasonSourceLimit = "ip_limit"
)

// Decision is the result of an admission check.
type Decision struct {
	Allowed bool
	// Reason is one of the Reason* constants when Allowed is false.
	Reason string
	// RetryMessage is a user-presentable denial message.
	RetryMessage string
	// Remaining is the hourly budget left when Allowed is true.
	Remaining int
}

type rateRecord struct {
	Counter      uint32
	WindowStart  int64
	LockoutUntil int64
}

// countWithin mirrors the window approximation: the whole counter is
// attributed to the window anchor, so it either counts fully or not at all.
func (r *rateRecord) countWithin(now time.Time, window time.Duration) int {
	if r == nil {
		return 0
	}
	if r.WindowStart < now.Add(-window).Unix() {
		return 0
	}
	return int(r.Counter)
}

// rateLimiter enforces issuance admission over Redis.
//
// One counter plus a window anchor per identifier, reset wholesale when the
// anchor ages past the window. This is a documented approximation of a
// sliding window: attempts clustered at a window boundary can reach up to
// twice the nominal threshold.
type rateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
}

func newRateLimiter(redisClient *redis.Client, cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *rateLimiter) thresholds(scope Scope) (hourly, burst int) {
	if scope == ScopeSource {
		return l.config.SourceHourlyLimit, 0
	}
	return l.config.IdentityHourlyLimit, l.config.IdentityBurstLimit
}

func (l *rateLimiter) hourlyReason(scope Scope) (string, string) {
	if scope == ScopeSource {
		return ReasonSourceLimit, "Too many requests from this address. Please try again in 30 minutes."
	}
	return ReasonHourlyLimit, "Too many requests. Please try again in 30 minutes."
}

// Check runs the admission sequence for an identifier: active lockout,
// then hourly threshold (applying a lockout on exceed), then burst guard
// (soft deny). Storage failure returns errRateLimiterUnavailable and the
// caller must fail closed.
func (l *rateLimiter) Check(ctx context.Context, id Identifier) (Decision, error) {
	hourly, burst := l.thresholds(id.Scope)

	if l.config.TestBypass {
		return Decision{Allowed: true, Remaining: hourly}, nil
	}

	record, err := l.load(ctx, id.key())
	if err != nil {
		return Decision{}, err
	}

	now := time.Now()
	if record != nil && record.LockoutUntil > now.Unix() {
		return Decision{
			Reason:       ReasonLockedOut,
			RetryMessage: "Too many attempts. Please try again later.",
		}, nil
	}

	hourlyCount := record.countWithin(now, l.config.Window)
	if hourlyCount >= hourly {
		if err := l.Lock(ctx, id, l.config.LockoutDuration); err != nil {
			return Decision{}, err
		}
		reason, message := l.hourlyReason(id.Scope)
		return Decision{Reason: reason, RetryMessage: message}, nil
	}

	if burst > 0 {
		if record.countWithin(now, l.config.BurstWindow) >= burst {
			return Decision{
				Reason:       ReasonBurstLimit,
				RetryMessage: "Too many requests. Please wait before trying again.",
			}, nil
		}
	}

	return Decision{Allowed: true, Remaining: hourly - hourlyCount}, nil
}

// Record upserts the attempt counter: increment inside the window, reset to
// 1 with a fresh anchor once the anchor ages past the full window.
func (l *rateLimiter) Record(ctx context.Context, id Identifier) error {
	if l.config.TestBypass {
		return nil
	}

	return l.mutate(ctx, id.key(), func(record *rateRecord, now time.Time) *rateRecord {
		if record == nil {
			return &rateRecord{Counter: 1, WindowStart: now.Unix()}
		}
		if now.Unix()-record.WindowStart > int64(l.config.Window/time.Second) {
			record.Counter = 1
			record.WindowStart = now.Unix()
			return record
		}
		record.Counter++
		return record
	})
}

// Lock applies a lockout independent of the counter. It elapses naturally
// or is cleared by ClearExpiredLockouts.
func (l *rateLimiter) Lock(ctx context.Context, id Identifier, duration time.Duration) error {
	if l.config.TestBypass {
		return nil
	}

	return l.mutate(ctx, id.key(), func(record *rateRecord, now time.Time) *rateRecord {
		if record == nil {
			record = &rateRecord{WindowStart: now.Unix()}
		}
		record.LockoutUntil = now.Add(duration).Unix()
		return record
	})
}

// ClearExpiredLockouts resets counters whose lockout has elapsed. Rows with
// no lockout age out through their key TTL.
func (l *rateLimiter) ClearExpiredLockouts(ctx context.Context) error {
	iter := l.redis.Scan(ctx, 0, rateKeyPrefix+":*", 128).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		err := l.mutate(ctx, key, func(record *rateRecord, now time.Time) *rateRecord {
			if record == nil || record.LockoutUntil == 0 || record.LockoutUntil > now.Unix() {
				return record
			}
			record.LockoutUntil = 0
			record.Counter = 0
			record.WindowStart = now.Unix()
			return record
		})
		if err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", errRateLimiterUnavailable, err)
	}
	return nil
}

func (l *rateLimiter) load(ctx context.Context, key string) (*rateRecord, error) {
	data, err := l.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", errRateLimiterUnavailable, err)
	}
	return decodeRateRecord(data)
}

// mutate applies fn to the record under an optimistic transaction. fn gets
// nil when no record exists and returns the record to write back, or nil to
// leave the key untouched.
func (l *rateLimiter) mutate(
	ctx context.Context,
	key string,
	fn func(record *rateRecord, now time.Time) *rateRecord,
) error {
	for i := 0; i < rateMaxRetries; i++ {
		err := l.redis.Watch(ctx, func(tx *redis.Tx) error {
			var record *rateRecord

			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case err == nil:
				record, err = decodeRateRecord(data)
				if err != nil {
					return err
				}
			case errors.Is(err, redis.Nil):
				record = nil
			default:
				return err
			}

			now := time.Now()
			updated := fn(record, now)
			if updated == nil {
				return nil
			}

			encoded, err := encodeRateRecord(updated)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, l.recordTTL(updated, now))
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", errRateLimiterUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: transaction contention", errRateLimiterUnavailable)
}

// recordTTL keeps the key alive for the longer of a full stale window or
// the remaining lockout, so an active lockout never evaporates early.
func (l *rateLimiter) recordTTL(record *rateRecord, now time.Time) time.Duration {
	ttl := 2 * l.config.Window
	if record.LockoutUntil > 0 {
		if remaining := time.Unix(record.LockoutUntil, 0).Sub(now); remaining > ttl {
			ttl = remaining
		}
	}
	return ttl
}

func encodeRateRecord(record *rateRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(rateRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Counter); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.WindowStart); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.LockoutUntil); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRateRecord(data []byte) (*rateRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != rateRecordVersionV1 {
		return nil, errors.New("invalid rate record version")
	}

	record := &rateRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Counter); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.WindowStart); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.LockoutUntil); err != nil {
		return nil, err
	}

	return record, nil
}
