package zerofriction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/justwpthings/zerofriction/internal"
)

func testCredentialRecord(code string, ttl time.Duration) *credentialRecord {
	now := time.Now()
	return &credentialRecord{
		Kind:           KindNumericOTP,
		CredentialHash: internal.HashCredential(testSecret, code),
		ExpiresAt:      now.Add(ttl).Unix(),
		CreatedAt:      now.Unix(),
	}
}

func TestCredentialConsumeIsSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newCredentialStore(rdb)
	identityHash := hashIdentity("alice@example.com")

	if err := store.Save(ctx, identityHash, testCredentialRecord("123456", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	record, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "123456"))
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if record.Kind != KindNumericOTP {
		t.Fatalf("expected numeric kind, got %v", record.Kind)
	}

	if _, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "123456")); !errors.Is(err, errCredentialNotFound) {
		t.Fatalf("expected second consume to miss, got %v", err)
	}
}

func TestCredentialSaveSupersedesPrior(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newCredentialStore(rdb)
	identityHash := hashIdentity("alice@example.com")

	if err := store.Save(ctx, identityHash, testCredentialRecord("111111", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save first failed: %v", err)
	}
	if err := store.Save(ctx, identityHash, testCredentialRecord("222222", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save second failed: %v", err)
	}

	if _, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "111111")); !errors.Is(err, errCredentialMismatch) {
		t.Fatalf("expected superseded code to mismatch, got %v", err)
	}

	if _, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "222222")); err != nil {
		t.Fatalf("expected newest code to verify, got %v", err)
	}
}

func TestCredentialMismatchLeavesRecordLive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newCredentialStore(rdb)
	identityHash := hashIdentity("alice@example.com")

	if err := store.Save(ctx, identityHash, testCredentialRecord("123456", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "654321")); !errors.Is(err, errCredentialMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	if _, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "123456")); err != nil {
		t.Fatalf("expected correct code to still verify after a mismatch, got %v", err)
	}
}

func TestCredentialExpiresByRecordTimestamp(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newCredentialStore(rdb)
	identityHash := hashIdentity("alice@example.com")

	// Record timestamp already past while the key TTL is still generous; the
	// read-time check must win.
	record := testCredentialRecord("123456", -time.Second)
	if err := store.Save(ctx, identityHash, record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "123456")); !errors.Is(err, errCredentialNotFound) {
		t.Fatalf("expected expired credential to read as not found, got %v", err)
	}

	if rdb.Exists(ctx, store.key(identityHash)).Val() != 0 {
		t.Fatal("expired credential must be deleted on read")
	}
}

func TestCredentialExpiresByKeyTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newCredentialStore(rdb)
	identityHash := hashIdentity("alice@example.com")

	if err := store.Save(ctx, identityHash, testCredentialRecord("123456", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "123456")); !errors.Is(err, errCredentialNotFound) {
		t.Fatalf("expected TTL-expired credential to miss, got %v", err)
	}
}

// txContentionHook touches a key from a second connection before every
// transaction pipeline, so the WATCH on that key aborts each attempt.
type txContentionHook struct {
	interfere func()
}

func (h txContentionHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h txContentionHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h txContentionHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.interfere()
		return next(ctx, cmds)
	}
}

func TestCredentialConsumeContentionFailsClosed(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newCredentialStore(rdb)
	identityHash := hashIdentity("alice@example.com")

	if err := store.Save(ctx, identityHash, testCredentialRecord("123456", time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	interferer := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer interferer.Close()

	key := store.key(identityHash)
	rdb.AddHook(txContentionHook{interfere: func() {
		data, err := interferer.Get(ctx, key).Result()
		if err != nil {
			return
		}
		_ = interferer.Set(ctx, key, data, time.Minute).Err()
	}})

	// Every retry loses the race, so the correct code must surface as an
	// infrastructure failure, never as a failed verification.
	_, err := store.Consume(ctx, identityHash, internal.HashCredential(testSecret, "123456"))
	if !errors.Is(err, errCredentialStoreUnavailable) {
		t.Fatalf("expected store unavailable under sustained contention, got %v", err)
	}
}

func TestCredentialConsumeFailsClosedWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := newCredentialStore(rdb)
	mr.Close()

	_, err := store.Consume(context.Background(), hashIdentity("x@example.com"), internal.HashCredential(testSecret, "123456"))
	if !errors.Is(err, errCredentialStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}
