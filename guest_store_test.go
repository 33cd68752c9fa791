package zerofriction

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedGuest(t *testing.T, store *guestStore, token, identity string, ttl time.Duration) {
	t.Helper()

	now := time.Now()
	record := &guestRecord{
		Identity:  identity,
		ExpiresAt: now.Add(ttl).Unix(),
		CreatedAt: now.Unix(),
	}
	if err := store.Save(context.Background(), token, record, ttl); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestGuestConsumeReturnsBoundIdentity(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := newGuestStore(rdb)
	seedGuest(t, store, "tok-1", "alice@example.com", time.Hour)

	record, err := store.Consume(context.Background(), "tok-1", "alice@example.com")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if record.Identity != "alice@example.com" {
		t.Fatalf("expected bound identity, got %q", record.Identity)
	}
}

func TestGuestConsumeIsSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := newGuestStore(rdb)
	seedGuest(t, store, "tok-1", "alice@example.com", time.Hour)

	if _, err := store.Consume(context.Background(), "tok-1", "alice@example.com"); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}
	if _, err := store.Consume(context.Background(), "tok-1", "alice@example.com"); !errors.Is(err, errGuestNotFound) {
		t.Fatalf("expected second consume to miss, got %v", err)
	}
}

func TestGuestIdentityMismatchConsumesToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := newGuestStore(rdb)
	seedGuest(t, store, "tok-1", "alice@example.com", time.Hour)

	if _, err := store.Consume(context.Background(), "tok-1", "mallory@example.com"); !errors.Is(err, errGuestIdentityMismatch) {
		t.Fatalf("expected identity mismatch, got %v", err)
	}

	// The mismatched presentation burned the token for its rightful owner
	// too.
	if _, err := store.Consume(context.Background(), "tok-1", "alice@example.com"); !errors.Is(err, errGuestNotFound) {
		t.Fatalf("expected burned token to miss, got %v", err)
	}
}

func TestGuestExpiresByTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := newGuestStore(rdb)
	seedGuest(t, store, "tok-1", "alice@example.com", time.Minute)

	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(context.Background(), "tok-1", "alice@example.com"); !errors.Is(err, errGuestNotFound) {
		t.Fatalf("expected expired token to miss, got %v", err)
	}
}
