package zerofriction

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAndRedeemGuestSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, testConfig())
	sink := withCapturedAudit(t, engine)

	session, err := engine.CreateGuestSession(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("CreateGuestSession failed: %v", err)
	}
	if session.Identity != "alice@example.com" {
		t.Fatalf("expected normalized identity, got %q", session.Identity)
	}
	if session.Token == "" {
		t.Fatal("expected guest token")
	}

	waitForAudit(t, sink, auditEventGuestSessionCreated)

	redeemed, err := engine.RedeemGuestSession(ctx, session.Token, "alice@example.com")
	if err != nil {
		t.Fatalf("RedeemGuestSession failed: %v", err)
	}
	if redeemed.Identity != "alice@example.com" {
		t.Fatalf("unexpected redeemed identity: %q", redeemed.Identity)
	}

	// Single use.
	if _, err := engine.RedeemGuestSession(ctx, session.Token, "alice@example.com"); !errors.Is(err, ErrGuestSessionInvalid) {
		t.Fatalf("expected consumed session to fail, got %v", err)
	}
}

func TestRedeemGuestSessionWrongIdentity(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, testConfig())

	session, err := engine.CreateGuestSession(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("CreateGuestSession failed: %v", err)
	}

	if _, err := engine.RedeemGuestSession(ctx, session.Token, "mallory@example.com"); !errors.Is(err, ErrGuestSessionInvalid) {
		t.Fatalf("expected ErrGuestSessionInvalid for wrong identity, got %v", err)
	}

	// The wrong-identity presentation consumed the token.
	if _, err := engine.RedeemGuestSession(ctx, session.Token, "alice@example.com"); !errors.Is(err, ErrGuestSessionInvalid) {
		t.Fatalf("expected burned token to fail, got %v", err)
	}
}

func TestGuestSessionExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Guest.SessionTTL = time.Minute
	engine := newTestEngine(t, rdb, cfg)

	session, err := engine.CreateGuestSession(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("CreateGuestSession failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := engine.RedeemGuestSession(ctx, session.Token, "alice@example.com"); !errors.Is(err, ErrGuestSessionInvalid) {
		t.Fatalf("expected expired session to fail, got %v", err)
	}
}

func TestInvalidateGuestSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, testConfig())

	session, err := engine.CreateGuestSession(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("CreateGuestSession failed: %v", err)
	}

	if err := engine.InvalidateGuestSession(ctx, session.Token); err != nil {
		t.Fatalf("InvalidateGuestSession failed: %v", err)
	}

	if _, err := engine.RedeemGuestSession(ctx, session.Token, "alice@example.com"); !errors.Is(err, ErrGuestSessionInvalid) {
		t.Fatalf("expected revoked session to fail, got %v", err)
	}

	if err := engine.InvalidateGuestSession(ctx, ""); !errors.Is(err, ErrGuestSessionInvalid) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}
}

func TestCreateAccountFromGuest(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, testConfig())
	engine.userProvider = newMockUserProvider()
	sink := withCapturedAudit(t, engine)

	session, err := engine.CreateGuestSession(ctx, "new@example.com")
	if err != nil {
		t.Fatalf("CreateGuestSession failed: %v", err)
	}

	result, err := engine.CreateAccountFromGuest(ctx, session.Token, "new@example.com", CreateUserInput{
		DisplayName: "New User",
	})
	if err != nil {
		t.Fatalf("CreateAccountFromGuest failed: %v", err)
	}
	if !result.UserCreated || result.Email != "new@example.com" || result.UserID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	event := waitForAudit(t, sink, auditEventUserCreatedFromGuest)
	if !event.Success || event.Metadata["user_id"] != result.UserID {
		t.Fatalf("unexpected audit event: %+v", event)
	}

	// The token is spent: creating again requires a fresh verification.
	if _, err := engine.CreateAccountFromGuest(ctx, session.Token, "new@example.com", CreateUserInput{}); !errors.Is(err, ErrGuestSessionInvalid) {
		t.Fatalf("expected spent token to fail, got %v", err)
	}
}

func TestCreateAccountFromGuestExistingUser(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, testConfig())
	engine.userProvider = newMockUserProvider(UserRecord{UserID: "u1", Email: "alice@example.com"})

	session, err := engine.CreateGuestSession(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("CreateGuestSession failed: %v", err)
	}

	if _, err := engine.CreateAccountFromGuest(ctx, session.Token, "alice@example.com", CreateUserInput{}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestCreateAccountFromGuestRegistrationDisabled(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Guest.AllowRegistration = false
	engine := newTestEngine(t, rdb, cfg)
	engine.userProvider = newMockUserProvider()

	if _, err := engine.CreateAccountFromGuest(ctx, "any-token", "new@example.com", CreateUserInput{}); !errors.Is(err, ErrRegistrationDisabled) {
		t.Fatalf("expected ErrRegistrationDisabled, got %v", err)
	}
}
